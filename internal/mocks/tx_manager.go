package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dtroode/accounts-server/internal/model"
)

// TxManager is a mock of model.TxManager. When the expectation returns a nil
// error, fn runs against Store.
type TxManager struct {
	mock.Mock
	Store model.UserStore
}

// NewTxManager creates a TxManager mock bound to store.
func NewTxManager(t interface {
	mock.TestingT
	Cleanup(func())
}, store model.UserStore) *TxManager {
	m := &TxManager{Store: store}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, users model.UserStore) error) error {
	if err := m.Called(ctx).Error(0); err != nil {
		return err
	}
	return fn(ctx, m.Store)
}
