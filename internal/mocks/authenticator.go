package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/accounts-server/internal/model"
)

// Authenticator is a mock of middleware.Authenticator.
type Authenticator struct {
	mock.Mock
}

// NewAuthenticator creates an Authenticator mock that asserts its expectations on cleanup.
func NewAuthenticator(t interface {
	mock.TestingT
	Cleanup(func())
}) *Authenticator {
	m := &Authenticator{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *Authenticator) Authenticate(ctx context.Context, token string) (model.User, error) {
	ret := m.Called(ctx, token)
	user, _ := ret.Get(0).(model.User)
	return user, ret.Error(1)
}
