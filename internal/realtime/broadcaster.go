package realtime

import (
	"encoding/json"
	"time"

	"github.com/HyphaGroup/lockstep/internal/logger"
	"github.com/HyphaGroup/lockstep/internal/metrics"
)

// Envelope is the wire format of one pushed event.
type Envelope struct {
	Type EventType              `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Broadcaster fans a typed event out to every registered client whose role
// is eligible per the permission matrix.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast serializes the event and pushes it to all eligible clients.
// triggeredBy is the human-readable label of the actor that caused the event.
//
// Delivery is best effort: a client whose sink write fails is unregistered
// and the fan-out continues for the rest. Broadcast never returns an error
// to the triggering request.
func (b *Broadcaster) Broadcast(eventType EventType, payload map[string]interface{}, triggeredBy string) {
	roles := EligibleRoles(eventType)
	if len(roles) == 0 {
		// Unknown event type: fail closed, deliver to no one.
		logger.Info("Broadcast of unknown event type %q dropped", eventType)
		return
	}

	data := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		data[k] = v
	}
	data["triggeredBy"] = triggeredBy
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	frame, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		logger.Error("Failed to serialize %s event: %v", eventType, err)
		return
	}

	eligible := b.registry.ListByRole(roles...)
	logger.Debug("Broadcasting %s to %d/%d clients (triggered by %s)",
		eventType, len(eligible), b.registry.Len(), triggeredBy)

	var dropped []string
	for _, c := range eligible {
		if err := c.Sink.Send(frame); err != nil {
			logger.Info("Failed to send %s to client %s (%s): %v", eventType, c.ClientID, c.HolderLabel, err)
			dropped = append(dropped, c.ClientID)
		}
	}

	for _, clientID := range dropped {
		b.registry.Unregister(clientID)
		metrics.RecordSinkDrop()
		logger.Info("Removed disconnected client: %s", clientID)
	}

	metrics.RecordBroadcast(string(eventType))
}
