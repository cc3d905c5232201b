package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/HyphaGroup/lockstep/internal/auth"
	"github.com/HyphaGroup/lockstep/internal/logger"
	"github.com/HyphaGroup/lockstep/internal/realtime"
)

var errSinkClosed = errors.New("sink closed")

// sseSink pushes event frames to one SSE response. Writes come from both the
// broadcaster (any goroutine) and this connection's keep-alive loop, so a
// mutex serializes them. The first failed write marks the sink closed.
type sseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func newSSESink(w http.ResponseWriter, flusher http.Flusher) *sseSink {
	return &sseSink{w: w, flusher: flusher}
}

// Send writes one data frame in SSE framing.
func (s *sseSink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// comment writes an SSE comment frame, used as keep-alive.
func (s *sseSink) comment(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed
	}
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleStream opens a Server-Sent-Events connection: register in the
// registry, confirm with a `connected` event, keep alive with periodic
// comment frames, unregister when the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
			"success": false,
			"error":   "method not allowed",
		})
		return
	}

	identity, ok := auth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"success": false,
			"error":   "unauthenticated",
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "streaming unsupported",
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := newSSESink(w, flusher)
	client := &realtime.Client{
		ClientID:    realtime.NewClientID(identity.HolderID),
		HolderID:    identity.HolderID,
		HolderRole:  identity.Role,
		HolderLabel: identity.Label,
		Sink:        sink,
	}

	s.registry.Register(client)
	defer s.registry.Unregister(client.ClientID)

	logger.Info("Stream connected: %s (%s, role %s)", client.ClientID, identity.Label, identity.Role)

	// Initial connection confirmation
	confirmation, err := json.Marshal(realtime.Envelope{
		Type: realtime.EventConnected,
		Data: map[string]interface{}{
			"message":     "Real-time updates connected",
			"clientId":    client.ClientID,
			"holderId":    identity.HolderID,
			"holderLabel": identity.Label,
			"role":        string(identity.Role),
			"connectedAt": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err == nil {
		if err := sink.Send(confirmation); err != nil {
			logger.Info("Stream %s closed before confirmation: %v", client.ClientID, err)
			return
		}
	}

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Info("Stream disconnected: %s (%s)", client.ClientID, identity.Label)
			return
		case <-s.done:
			logger.Info("Stream closed by shutdown: %s", client.ClientID)
			return
		case <-ticker.C:
			if err := sink.comment("heartbeat " + time.Now().UTC().Format(time.RFC3339)); err != nil {
				logger.Info("Stream keep-alive failed for %s: %v", client.ClientID, err)
				return
			}
		}
	}
}
