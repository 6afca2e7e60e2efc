package model

import "context"

// ContextManager stores the authenticated user on a request context.
type ContextManager interface {
	WithUser(ctx context.Context, user User) context.Context
	UserFromContext(ctx context.Context) (User, bool)
}
