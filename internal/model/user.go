package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
//
// ForUpdate lookups lock the matched row until the surrounding transaction
// ends; outside a transaction they behave like plain lookups.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetBySessionToken(ctx context.Context, token string) (User, error)
	GetByUpdateToken(ctx context.Context, token string) (User, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	GetByUpdateTokenForUpdate(ctx context.Context, token string) (User, error)
	List(ctx context.Context) ([]User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, user User) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TxManager runs fn inside a single storage transaction. The store passed to
// fn is bound to that transaction. Returning an error from fn rolls it back.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, users UserStore) error) error
}

// User represents a stored account with its credential and session state.
type User struct {
	ID                uuid.UUID
	First             string
	Last              string
	Email             string
	PasswordDigest    string
	SessionToken      string
	SessionExpiration time.Time
	UpdateToken       string
	AvatarKey         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewUser holds registration input.
type NewUser struct {
	Email    string
	Password string
	First    string
	Last     string
}

// ProfileUpdate holds optional profile changes. Nil fields are left as is.
type ProfileUpdate struct {
	First *string
	Last  *string
	Email *string
}
