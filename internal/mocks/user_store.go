package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/accounts-server/internal/model"
)

// UserStore is a mock of model.UserStore.
type UserStore struct {
	mock.Mock
}

// NewUserStore creates a UserStore mock that asserts its expectations on cleanup.
func NewUserStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *UserStore {
	m := &UserStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func userResult(ret mock.Arguments) (model.User, error) {
	user, _ := ret.Get(0).(model.User)
	return user, ret.Error(1)
}

func (m *UserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return userResult(m.Called(ctx, email))
}

func (m *UserStore) GetBySessionToken(ctx context.Context, token string) (model.User, error) {
	return userResult(m.Called(ctx, token))
}

func (m *UserStore) GetByUpdateToken(ctx context.Context, token string) (model.User, error) {
	return userResult(m.Called(ctx, token))
}

func (m *UserStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (model.User, error) {
	return userResult(m.Called(ctx, id))
}

func (m *UserStore) GetByUpdateTokenForUpdate(ctx context.Context, token string) (model.User, error) {
	return userResult(m.Called(ctx, token))
}

func (m *UserStore) List(ctx context.Context) ([]model.User, error) {
	ret := m.Called(ctx)
	users, _ := ret.Get(0).([]model.User)
	return users, ret.Error(1)
}

func (m *UserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	return userResult(m.Called(ctx, user))
}

func (m *UserStore) Update(ctx context.Context, user model.User) (model.User, error) {
	return userResult(m.Called(ctx, user))
}

func (m *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
