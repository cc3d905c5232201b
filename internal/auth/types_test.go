package auth

import "testing"

func TestValidRole(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleManager, RoleTechnician, RoleUser, RoleAccounting} {
		if !ValidRole(role) {
			t.Errorf("ValidRole(%s) = false, want true", role)
		}
	}
	for _, role := range []Role{"", "root", "Admin", "ADMIN"} {
		if ValidRole(role) {
			t.Errorf("ValidRole(%q) = true, want false", role)
		}
	}
}

func TestIdentityFromToken(t *testing.T) {
	token := &Token{
		ID:       "lks_abc",
		HolderID: "usr_123",
		Name:     "Dashboard",
		Role:     RoleManager,
	}

	id := IdentityFromToken(token)
	if id.HolderID != "usr_123" {
		t.Errorf("Identity.HolderID = %v, want usr_123", id.HolderID)
	}
	if id.Label != "Dashboard" {
		t.Errorf("Identity.Label = %v, want Dashboard", id.Label)
	}
	if id.Role != RoleManager {
		t.Errorf("Identity.Role = %v, want manager", id.Role)
	}
}

func TestIdentity_IsAdmin(t *testing.T) {
	if !(Identity{Role: RoleAdmin}).IsAdmin() {
		t.Error("admin identity should report IsAdmin")
	}
	if (Identity{Role: RoleManager}).IsAdmin() {
		t.Error("manager identity should not report IsAdmin")
	}
}
