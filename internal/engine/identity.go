package engine

import (
	"context"

	"formflow-backend/internal/metadata"
)

// Identity resolves users and roles owned by the external identity system.
// Both methods return store.ErrNotFound for unknown ids.
type Identity interface {
	ResolveUser(ctx context.Context, id int64) (*metadata.User, error)
	ResolveRole(ctx context.Context, id int64) (*metadata.Role, error)
}

// IsAdmin is the capability predicate gating admin-only record operations.
func IsAdmin(u *metadata.User) bool {
	return u != nil && u.IsAdmin
}
