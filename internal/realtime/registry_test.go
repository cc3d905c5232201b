package realtime

import (
	"testing"

	"github.com/HyphaGroup/lockstep/internal/auth"
)

type nopSink struct{}

func (nopSink) Send(data []byte) error { return nil }

func newTestClient(clientID, holderID string, role auth.Role) *Client {
	return &Client{
		ClientID:    clientID,
		HolderID:    holderID,
		HolderRole:  role,
		HolderLabel: holderID,
		Sink:        nopSink{},
	}
}

func TestRegistry_RegisterUnregister(t *testing.T) {
	r := NewRegistry()

	r.Register(newTestClient("c1", "usr_a", auth.RoleAdmin))
	r.Register(newTestClient("c2", "usr_b", auth.RoleUser))

	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	r.Unregister("c1")
	if r.Len() != 1 {
		t.Errorf("Len() after unregister = %d, want 1", r.Len())
	}

	// Unknown ids are a no-op.
	r.Unregister("c1")
	r.Unregister("never-existed")
	if r.Len() != 1 {
		t.Errorf("Len() after double unregister = %d, want 1", r.Len())
	}
}

func TestRegistry_ListByRole(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestClient("c1", "usr_a", auth.RoleAdmin))
	r.Register(newTestClient("c2", "usr_b", auth.RoleManager))
	r.Register(newTestClient("c3", "usr_c", auth.RoleUser))
	r.Register(newTestClient("c4", "usr_d", auth.RoleAdmin))

	admins := r.ListByRole(auth.RoleAdmin)
	if len(admins) != 2 {
		t.Errorf("ListByRole(admin) = %d clients, want 2", len(admins))
	}

	both := r.ListByRole(auth.RoleAdmin, auth.RoleManager)
	if len(both) != 3 {
		t.Errorf("ListByRole(admin, manager) = %d clients, want 3", len(both))
	}

	none := r.ListByRole(auth.RoleAccounting)
	if len(none) != 0 {
		t.Errorf("ListByRole(accounting) = %d clients, want 0", len(none))
	}
}

func TestRegistry_IsHolderConnected(t *testing.T) {
	r := NewRegistry()

	if r.IsHolderConnected("usr_a") {
		t.Error("empty registry should report no holders connected")
	}

	// Same holder may hold several connections (multiple tabs).
	r.Register(newTestClient("c1", "usr_a", auth.RoleAdmin))
	r.Register(newTestClient("c2", "usr_a", auth.RoleAdmin))

	if !r.IsHolderConnected("usr_a") {
		t.Error("IsHolderConnected(usr_a) = false, want true")
	}

	r.Unregister("c1")
	if !r.IsHolderConnected("usr_a") {
		t.Error("holder with one remaining connection should still be connected")
	}

	r.Unregister("c2")
	if r.IsHolderConnected("usr_a") {
		t.Error("holder with no connections should be disconnected")
	}
}

func TestNewClientID(t *testing.T) {
	id := NewClientID("usr_abc")
	if len(id) <= len("usr_abc") {
		t.Errorf("NewClientID() = %v, want holder id plus timestamp suffix", id)
	}
	if id[:len("usr_abc")] != "usr_abc" {
		t.Errorf("NewClientID() = %v, want usr_abc prefix", id)
	}
}
