package metadata

import "fmt"

// Capability is the single permission level attached to a role.
type Capability string

const (
	CapabilityInsert        Capability = "INSERT"
	CapabilityUpdateApprove Capability = "UPDATE_APPROVE"
	CapabilitySignoff       Capability = "SIGNOFF"
)

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(s); c {
	case CapabilityInsert, CapabilityUpdateApprove, CapabilitySignoff:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capability %q", s)
	}
}

// Role is read from the identity directory; the core never writes it.
type Role struct {
	ID         int64      `json:"id"`
	Name       string     `json:"role"`
	Capability Capability `json:"actions"`
}

// User is the slice of the identity directory the core needs for
// attribution and capability checks.
type User struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	RoleID  int64  `json:"role_id"`
	IsAdmin bool   `json:"is_admin"`
	Active  bool   `json:"active"`
}

// UserContext represents the authenticated caller, set by auth middleware.
type UserContext struct {
	ID    int64 `json:"id"`
	Admin bool  `json:"admin"`
}

// IsAdmin checks whether the caller holds the admin flag.
func (u *UserContext) IsAdmin() bool {
	return u != nil && u.Admin
}
