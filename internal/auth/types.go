package auth

import (
	"time"
)

// Role is the viewer role attached to a token. Roles drive both event
// eligibility (who sees a broadcast) and producer rights (who may trigger one).
type Role string

// Known roles.
const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleTechnician Role = "technician"
	RoleUser       Role = "user"
	RoleAccounting Role = "accounting"
)

// ValidRole returns true if r is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTechnician, RoleUser, RoleAccounting:
		return true
	}
	return false
}

// Token represents an API token for stream and lock access.
type Token struct {
	ID         string     `json:"id"`
	HolderID   string     `json:"holder_id"`
	Name       string     `json:"name"`
	Role       Role       `json:"role"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Identity is the resolved identity of an authenticated request: a stable
// holder id, a human-readable label, and a role. The rest of the system
// treats this as opaque.
type Identity struct {
	HolderID string
	Label    string
	Role     Role
}

// IdentityFromToken derives the request identity from a validated token.
func IdentityFromToken(t *Token) Identity {
	return Identity{
		HolderID: t.HolderID,
		Label:    t.Name,
		Role:     t.Role,
	}
}

// IsAdmin returns true if the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
