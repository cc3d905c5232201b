package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/HyphaGroup/lockstep/internal/auth"
)

// recordingSink captures frames; optionally fails every send.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (s *recordingSink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection reset")
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) received() []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Envelope, 0, len(s.frames))
	for _, f := range s.frames {
		var env Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out
}

func registerSink(r *Registry, clientID, holderID string, role auth.Role, sink Sink) {
	r.Register(&Client{
		ClientID:    clientID,
		HolderID:    holderID,
		HolderRole:  role,
		HolderLabel: holderID,
		Sink:        sink,
	})
}

func TestBroadcaster_RoleFiltering(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry)

	adminSink := &recordingSink{}
	userSink := &recordingSink{}
	accountingSink := &recordingSink{}
	registerSink(registry, "c-admin", "usr_a", auth.RoleAdmin, adminSink)
	registerSink(registry, "c-user", "usr_u", auth.RoleUser, userSink)
	registerSink(registry, "c-acct", "usr_f", auth.RoleAccounting, accountingSink)

	// lock-acquired is admin-only.
	b.Broadcast(EventLockAcquired, map[string]interface{}{"entityId": "user-1"}, "Alice")

	if got := len(adminSink.received()); got != 1 {
		t.Errorf("admin received %d events, want 1", got)
	}
	if got := len(userSink.received()); got != 0 {
		t.Errorf("user received %d events, want 0", got)
	}
	if got := len(accountingSink.received()); got != 0 {
		t.Errorf("accounting received %d events, want 0", got)
	}

	// system-announcement reaches everyone.
	b.Broadcast(EventSystemAnnouncement, map[string]interface{}{"message": "maintenance at 9"}, "Admin")

	for name, sink := range map[string]*recordingSink{
		"admin": adminSink, "user": userSink, "accounting": accountingSink,
	} {
		events := sink.received()
		last := events[len(events)-1]
		if last.Type != EventSystemAnnouncement {
			t.Errorf("%s last event = %v, want system-announcement", name, last.Type)
		}
	}
}

func TestBroadcaster_InjectsMetadata(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry)

	sink := &recordingSink{}
	registerSink(registry, "c1", "usr_a", auth.RoleAdmin, sink)

	b.Broadcast(EventLockAcquired, map[string]interface{}{"entityId": "user-1"}, "Alice")

	events := sink.received()
	if len(events) != 1 {
		t.Fatalf("received %d events, want 1", len(events))
	}
	data := events[0].Data
	if data["entityId"] != "user-1" {
		t.Errorf("entityId = %v, want user-1", data["entityId"])
	}
	if data["triggeredBy"] != "Alice" {
		t.Errorf("triggeredBy = %v, want Alice", data["triggeredBy"])
	}
	if data["timestamp"] == nil || data["timestamp"] == "" {
		t.Error("timestamp should be injected")
	}
}

func TestBroadcaster_UnknownTypeDeliversNothing(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry)

	sink := &recordingSink{}
	registerSink(registry, "c1", "usr_a", auth.RoleAdmin, sink)

	b.Broadcast("made-up-event", map[string]interface{}{"x": 1}, "Alice")

	if got := len(sink.received()); got != 0 {
		t.Errorf("received %d events for unknown type, want 0", got)
	}
}

func TestBroadcaster_FaultySinkDoesNotBlockOthers(t *testing.T) {
	registry := NewRegistry()
	b := NewBroadcaster(registry)

	healthy := &recordingSink{}
	broken := &recordingSink{fail: true}
	registerSink(registry, "c-ok", "usr_a", auth.RoleAdmin, healthy)
	registerSink(registry, "c-broken", "usr_b", auth.RoleAdmin, broken)

	b.Broadcast(EventLockAcquired, map[string]interface{}{"entityId": "user-1"}, "Alice")

	if got := len(healthy.received()); got != 1 {
		t.Errorf("healthy client received %d events, want 1", got)
	}

	// Broken client is evicted from the registry.
	if registry.Len() != 1 {
		t.Errorf("Len() after broadcast = %d, want 1", registry.Len())
	}
	if registry.IsHolderConnected("usr_b") {
		t.Error("broken client's holder should no longer be connected")
	}

	// Subsequent broadcasts proceed without the evicted client.
	b.Broadcast(EventLockReleased, map[string]interface{}{"entityId": "user-1"}, "Alice")
	if got := len(healthy.received()); got != 2 {
		t.Errorf("healthy client received %d events, want 2", got)
	}
}
