// Package memory provides an in-process user store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/model"
)

var (
	_ model.UserStore = (*Store)(nil)
	_ model.TxManager = (*Store)(nil)
)

// Store keeps users in a map guarded by a single mutex. Transactions hold the
// mutex for their whole duration and work on a copy that replaces the live
// data only on success.
type Store struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func NewStore() *Store {
	return &Store{users: make(map[uuid.UUID]model.User)}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, users model.UserStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := &table{users: make(map[uuid.UUID]model.User, len(s.users))}
	for id, u := range s.users {
		view.users[id] = u
	}

	if err := fn(ctx, view); err != nil {
		return err
	}

	s.users = view.users
	return nil
}

func (s *Store) locked(fn func(t *table) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&table{users: s.users})
}

func (s *Store) get(fn func(t *table) (model.User, error)) (user model.User, err error) {
	err = s.locked(func(t *table) error {
		user, err = fn(t)
		return err
	})
	return user, err
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return s.get(func(t *table) (model.User, error) { return t.GetByID(ctx, id) })
}

func (s *Store) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return s.get(func(t *table) (model.User, error) { return t.GetByEmail(ctx, email) })
}

func (s *Store) GetBySessionToken(ctx context.Context, token string) (model.User, error) {
	return s.get(func(t *table) (model.User, error) { return t.GetBySessionToken(ctx, token) })
}

func (s *Store) GetByUpdateToken(ctx context.Context, token string) (model.User, error) {
	return s.get(func(t *table) (model.User, error) { return t.GetByUpdateToken(ctx, token) })
}

func (s *Store) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (model.User, error) {
	return s.GetByID(ctx, id)
}

func (s *Store) GetByUpdateTokenForUpdate(ctx context.Context, token string) (model.User, error) {
	return s.GetByUpdateToken(ctx, token)
}

func (s *Store) List(ctx context.Context) (users []model.User, err error) {
	err = s.locked(func(t *table) error {
		users, err = t.List(ctx)
		return err
	})
	return users, err
}

func (s *Store) Create(ctx context.Context, user model.User) (model.User, error) {
	return s.get(func(t *table) (model.User, error) { return t.Create(ctx, user) })
}

func (s *Store) Update(ctx context.Context, user model.User) (model.User, error) {
	return s.get(func(t *table) (model.User, error) { return t.Update(ctx, user) })
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	return s.locked(func(t *table) error { return t.Delete(ctx, id) })
}

// table implements model.UserStore over a map the caller has already locked.
type table struct {
	users map[uuid.UUID]model.User
}

func (t *table) find(match func(model.User) bool) (model.User, error) {
	for _, u := range t.users {
		if match(u) {
			return u, nil
		}
	}
	return model.User{}, model.ErrNotFound
}

func (t *table) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	u, ok := t.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return u, nil
}

func (t *table) GetByEmail(_ context.Context, email string) (model.User, error) {
	return t.find(func(u model.User) bool { return u.Email == email })
}

func (t *table) GetBySessionToken(_ context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, model.ErrNotFound
	}
	return t.find(func(u model.User) bool { return u.SessionToken == token })
}

func (t *table) GetByUpdateToken(_ context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, model.ErrNotFound
	}
	return t.find(func(u model.User) bool { return u.UpdateToken == token })
}

func (t *table) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (model.User, error) {
	return t.GetByID(ctx, id)
}

func (t *table) GetByUpdateTokenForUpdate(ctx context.Context, token string) (model.User, error) {
	return t.GetByUpdateToken(ctx, token)
}

func (t *table) List(_ context.Context) ([]model.User, error) {
	users := make([]model.User, 0, len(t.users))
	for _, u := range t.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID.String() < users[j].ID.String()
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// checkUnique enforces the same constraints as the users table. Empty
// tokens behave like NULL and never conflict.
func (t *table) checkUnique(user model.User) error {
	for id, u := range t.users {
		if id == user.ID {
			continue
		}
		switch {
		case u.Email == user.Email:
			return &model.ConflictError{Field: model.FieldEmail}
		case user.SessionToken != "" && u.SessionToken == user.SessionToken:
			return &model.ConflictError{Field: model.FieldSessionToken}
		case user.UpdateToken != "" && u.UpdateToken == user.UpdateToken:
			return &model.ConflictError{Field: model.FieldUpdateToken}
		}
	}
	return nil
}

func (t *table) Create(_ context.Context, user model.User) (model.User, error) {
	if _, ok := t.users[user.ID]; ok {
		return model.User{}, &model.ConflictError{Field: "id"}
	}
	if err := t.checkUnique(user); err != nil {
		return model.User{}, err
	}
	t.users[user.ID] = user
	return user, nil
}

func (t *table) Update(_ context.Context, user model.User) (model.User, error) {
	existing, ok := t.users[user.ID]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	if err := t.checkUnique(user); err != nil {
		return model.User{}, err
	}
	user.CreatedAt = existing.CreatedAt
	t.users[user.ID] = user
	return user, nil
}

func (t *table) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := t.users[id]; !ok {
		return model.ErrNotFound
	}
	delete(t.users, id)
	return nil
}
