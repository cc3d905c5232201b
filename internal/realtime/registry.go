// Package realtime implements the connection registry and event broadcaster
// behind the /stream endpoint: an in-memory directory of open push
// connections and a role-filtered fan-out over them.
package realtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/HyphaGroup/lockstep/internal/auth"
	"github.com/HyphaGroup/lockstep/internal/metrics"
)

// Sink is the output channel used to push raw event frames to one connected
// client. Send returns an error when the peer is gone; the registry treats
// that client as disconnected.
type Sink interface {
	Send(data []byte) error
}

// Client is one open stream connection tagged with the viewer's identity.
type Client struct {
	ClientID    string
	HolderID    string
	HolderRole  auth.Role
	HolderLabel string
	Sink        Sink
}

// NewClientID derives a registry key from the holder id and the connection
// time. Not globally unique across restarts; the registry is rebuilt from
// scratch when the process restarts.
func NewClientID(holderID string) string {
	return fmt.Sprintf("%s-%d", holderID, time.Now().UnixMilli())
}

// Registry is the process-wide directory of currently open stream
// connections. Construct exactly one per process and pass it by reference to
// every handler; entries live exactly as long as the underlying connection.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
	}
}

// Register inserts a client into the registry.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	r.clients[c.ClientID] = c
	r.mu.Unlock()
	metrics.RecordClientConnect(string(c.HolderRole))
}

// Unregister removes a client on stream close or error. Unknown ids are a
// no-op so disconnect paths can call it unconditionally.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	c, ok := r.clients[clientID]
	if ok {
		delete(r.clients, clientID)
	}
	r.mu.Unlock()
	if ok {
		metrics.RecordClientDisconnect(string(c.HolderRole))
	}
}

// ListByRole returns a snapshot of clients whose role is in roles.
func (r *Registry) ListByRole(roles ...auth.Role) []*Client {
	allowed := make(map[auth.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*Client
	for _, c := range r.clients {
		if allowed[c.HolderRole] {
			result = append(result, c)
		}
	}
	return result
}

// ListAll returns a snapshot of every registered client.
func (r *Registry) ListAll() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		result = append(result, c)
	}
	return result
}

// IsHolderConnected reports whether any open connection belongs to holderID.
// Used by the lock sweep to infer holder liveness from registry presence.
func (r *Registry) IsHolderConnected(holderID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		if c.HolderID == holderID {
			return true
		}
	}
	return false
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
