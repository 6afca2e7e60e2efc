package context

import (
	"context"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/model"
)

type userKey struct{}

// Manager stores the authenticated user on a request context.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// WithUser returns a copy of ctx carrying user.
func (m *Manager) WithUser(ctx context.Context, user model.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user set by WithUser. A zero user ID counts as
// absent.
func (m *Manager) UserFromContext(ctx context.Context) (model.User, bool) {
	user, ok := ctx.Value(userKey{}).(model.User)
	if !ok || user.ID == uuid.Nil {
		return model.User{}, false
	}
	return user, true
}
