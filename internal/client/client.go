// Package client implements the consumer side of the realtime stream: a
// long-lived SSE connection, local lock state reconciled from pushed events
// and periodic snapshots, and the lock API consumed by editing UIs.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Defaults for the reconnect and reconcile policy.
const (
	DefaultReconnectWait = 5 * time.Second
	DefaultSettleDelay   = 1 * time.Second
)

var ErrClosed = errors.New("client closed")

// Event is one decoded stream message: a tagged union of event kind and
// payload, consumed by a single dispatch switch.
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// AcquireResult mirrors the server's lock-acquire response.
type AcquireResult struct {
	Granted  bool
	Extended bool
	LockedBy string
}

// Client maintains one stream connection and the lock state derived from it.
// All exported methods are safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client

	reconnectWait time.Duration
	settleDelay   time.Duration

	// OnEvent, when set before Connect, observes every decoded event after
	// the built-in dispatch has run.
	OnEvent func(Event)

	mu        sync.RWMutex
	connected bool
	role      string
	clientID  string
	holderID  string
	label     string
	owners    map[string]string   // entityID -> holder label for all known locks
	mine      map[string]struct{} // entityIDs this client holds

	cancel context.CancelFunc
	closed chan struct{}
	wg     sync.WaitGroup
}

// New creates a client for the lockstep server at baseURL authenticating
// with the given token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		httpc:         &http.Client{},
		reconnectWait: DefaultReconnectWait,
		settleDelay:   DefaultSettleDelay,
		owners:        make(map[string]string),
		mine:          make(map[string]struct{}),
		closed:        make(chan struct{}),
	}
}

// Connect starts the stream loop. It returns immediately; connection state
// is observable via Connected. The loop reconnects after stream errors
// (waiting reconnectWait between attempts) until Close is called.
func (c *Client) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			c.stream(ctx)

			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()

			select {
			case <-ctx.Done():
				return
			case <-c.closed:
				return
			case <-time.After(c.reconnectWait):
			}
		}
	}()
}

// Close tears the client down: the stream is closed and all local state is
// cleared. A closed client does not reconnect; a session or user change
// requires a fresh client.
func (c *Client) Close() {
	select {
	case <-c.closed:
		return
	default:
	}
	close(c.closed)
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.connected = false
	c.owners = make(map[string]string)
	c.mine = make(map[string]struct{})
	c.mu.Unlock()
}

// stream opens one SSE connection and dispatches events until it fails or
// the context is canceled.
func (c *Client) stream(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stream", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()

		// SSE framing: data lines carry JSON, comment lines are keep-alives.
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}

		var event Event
		if err := json.Unmarshal(bytes.TrimPrefix(line, []byte("data: ")), &event); err != nil {
			continue
		}

		c.dispatch(ctx, event)

		if c.OnEvent != nil {
			c.OnEvent(event)
		}
	}
}

// dispatch applies one decoded event to local state.
func (c *Client) dispatch(ctx context.Context, event Event) {
	switch event.Type {
	case "connected":
		c.mu.Lock()
		c.connected = true
		c.role, _ = event.Data["role"].(string)
		c.clientID, _ = event.Data["clientId"].(string)
		c.holderID, _ = event.Data["holderId"].(string)
		c.label, _ = event.Data["holderLabel"].(string)
		isAdmin := c.role == "admin"
		c.mu.Unlock()

		// Lock state may have changed while disconnected. Give the
		// connection a moment to settle, then reconcile from the snapshot.
		if isAdmin {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				select {
				case <-ctx.Done():
					return
				case <-c.closed:
					return
				case <-time.After(c.settleDelay):
				}
				_ = c.RefreshLocks(ctx)
			}()
		}

	case "lock-acquired":
		entityID, _ := event.Data["entityId"].(string)
		label, _ := event.Data["holderLabel"].(string)
		if entityID == "" {
			return
		}
		c.mu.Lock()
		c.owners[entityID] = label
		c.mu.Unlock()

	case "lock-released":
		entityID, _ := event.Data["entityId"].(string)
		if entityID == "" {
			return
		}
		c.mu.Lock()
		delete(c.owners, entityID)
		// A sweep can revoke this client's own expired lock.
		if reason, _ := event.Data["reason"].(string); reason == "session_disconnected" {
			delete(c.mine, entityID)
		}
		c.mu.Unlock()
	}
}

// RefreshLocks re-fetches the active lock snapshot and rebuilds local state
// from it. Called automatically after connect; callable directly (e.g. on
// page focus).
func (c *Client) RefreshLocks(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/locks", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lock snapshot request failed: %s", resp.Status)
	}

	var body struct {
		Success bool `json:"success"`
		Locks   []struct {
			EntityID    string `json:"entity_id"`
			HolderID    string `json:"holder_id"`
			HolderLabel string `json:"holder_label"`
		} `json:"locks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.owners = make(map[string]string, len(body.Locks))
	c.mine = make(map[string]struct{})
	for _, l := range body.Locks {
		c.owners[l.EntityID] = l.HolderLabel
		if l.HolderID == c.holderID {
			c.mine[l.EntityID] = struct{}{}
		}
	}
	return nil
}

// Acquire requests the edit lock on entityID. The call blocks until the
// server answers; editing UIs must not open until it returns granted.
func (c *Client) Acquire(ctx context.Context, entityID string) (*AcquireResult, error) {
	var resp struct {
		Success  bool   `json:"success"`
		Extended bool   `json:"extended"`
		LockedBy string `json:"lockedBy"`
		Error    string `json:"error"`
	}
	status, err := c.postLock(ctx, entityID, "acquire", &resp)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
		c.mu.Lock()
		c.owners[entityID] = c.label
		c.mine[entityID] = struct{}{}
		c.mu.Unlock()
		return &AcquireResult{Granted: true, Extended: resp.Extended}, nil
	case http.StatusConflict:
		return &AcquireResult{Granted: false, LockedBy: resp.LockedBy}, nil
	default:
		// Fail closed: the editor must not open when lock state is unknown.
		return nil, fmt.Errorf("lock acquire failed with status %d: %s", status, resp.Error)
	}
}

// Release gives up the edit lock on entityID. Returns true if a lock was
// actually released.
func (c *Client) Release(ctx context.Context, entityID string) (bool, error) {
	var resp struct {
		Success  bool   `json:"success"`
		Released bool   `json:"released"`
		Error    string `json:"error"`
	}
	status, err := c.postLock(ctx, entityID, "release", &resp)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("lock release failed with status %d: %s", status, resp.Error)
	}

	c.mu.Lock()
	delete(c.owners, entityID)
	delete(c.mine, entityID)
	c.mu.Unlock()

	return resp.Released, nil
}

func (c *Client) postLock(ctx context.Context, entityID, action string, out interface{}) (int, error) {
	select {
	case <-c.closed:
		return 0, ErrClosed
	default:
	}

	payload, err := json.Marshal(map[string]string{
		"entityId": entityID,
		"action":   action,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/locks", bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}

// Connected reports whether the stream is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Role returns the role assigned by the server on connect.
func (c *Client) Role() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// ClientID returns the registry key assigned on connect.
func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// IsLockedBy returns the label of the holder of entityID's lock, if any.
func (c *Client) IsLockedBy(entityID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	label, ok := c.owners[entityID]
	return label, ok
}

// AmIEditing reports whether this client holds the lock on entityID.
func (c *Client) AmIEditing(entityID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.mine[entityID]
	return ok
}

// EditingEntities returns the entity ids this client is currently editing.
func (c *Client) EditingEntities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.mine))
	for id := range c.mine {
		out = append(out, id)
	}
	return out
}
