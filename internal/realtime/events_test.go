package realtime

import (
	"testing"

	"github.com/HyphaGroup/lockstep/internal/auth"
)

func TestEligibleRoles_Matrix(t *testing.T) {
	tests := []struct {
		eventType EventType
		role      auth.Role
		want      bool
	}{
		{EventLockAcquired, auth.RoleAdmin, true},
		{EventLockAcquired, auth.RoleManager, false},
		{EventLockAcquired, auth.RoleUser, false},
		{EventUserUpdated, auth.RoleAdmin, true},
		{EventUserUpdated, auth.RoleTechnician, false},

		{EventJobCardCreated, auth.RoleAdmin, true},
		{EventJobCardCreated, auth.RoleTechnician, true},
		{EventJobCardCreated, auth.RoleUser, true},
		{EventJobCardCreated, auth.RoleAccounting, false},

		{EventInventoryUpdated, auth.RoleTechnician, true},
		{EventInventoryUpdated, auth.RoleUser, false},

		{EventSalaryUpdated, auth.RoleAccounting, true},
		{EventSalaryUpdated, auth.RoleManager, false},

		{EventSystemAnnouncement, auth.RoleUser, true},
		{EventSystemAnnouncement, auth.RoleAccounting, true},

		{EventOrderCreated, auth.RoleManager, true},
		{EventOrderCreated, auth.RoleTechnician, false},
	}

	for _, tt := range tests {
		if got := CanReceive(tt.eventType, tt.role); got != tt.want {
			t.Errorf("CanReceive(%s, %s) = %v, want %v", tt.eventType, tt.role, got, tt.want)
		}
	}
}

func TestEligibleRoles_UnknownTypeFailsClosed(t *testing.T) {
	roles := EligibleRoles("made-up-event")
	if len(roles) != 0 {
		t.Errorf("EligibleRoles(unknown) = %v, want empty", roles)
	}

	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleManager, auth.RoleTechnician, auth.RoleUser, auth.RoleAccounting} {
		if CanReceive("made-up-event", role) {
			t.Errorf("CanReceive(unknown, %s) = true, want false", role)
		}
		if CanTrigger("made-up-event", role) {
			t.Errorf("CanTrigger(unknown, %s) = true, want false", role)
		}
	}
}

func TestCanTrigger_NarrowerThanCanReceive(t *testing.T) {
	// All staff see task-overdue, but only admins and managers may raise it.
	if !CanReceive(EventTaskOverdue, auth.RoleTechnician) {
		t.Error("technicians should receive task-overdue")
	}
	if CanTrigger(EventTaskOverdue, auth.RoleTechnician) {
		t.Error("technicians should not trigger task-overdue")
	}
	if !CanTrigger(EventTaskOverdue, auth.RoleManager) {
		t.Error("managers should trigger task-overdue")
	}

	// Everyone sees system announcements; only admins make them.
	if !CanReceive(EventSystemAnnouncement, auth.RoleUser) {
		t.Error("users should receive system-announcement")
	}
	if CanTrigger(EventSystemAnnouncement, auth.RoleManager) {
		t.Error("managers should not trigger system-announcement")
	}
	if !CanTrigger(EventSystemAnnouncement, auth.RoleAdmin) {
		t.Error("admins should trigger system-announcement")
	}
}

func TestRequiredProducerRoles(t *testing.T) {
	roles := RequiredProducerRoles(EventOrderCreated)
	if len(roles) != 2 {
		t.Fatalf("RequiredProducerRoles(order-created) = %v, want 2 roles", roles)
	}

	if got := RequiredProducerRoles("made-up-event"); len(got) != 0 {
		t.Errorf("RequiredProducerRoles(unknown) = %v, want empty", got)
	}
}
