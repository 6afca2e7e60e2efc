package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := fmt.Errorf("create user: %w", NewValidationError(FieldEmail, "is required"))

	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "create user: email is required", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, FieldEmail, ve.Field)
}

func TestConflictError(t *testing.T) {
	err := fmt.Errorf("insert: %w", &ConflictError{Field: FieldEmail})

	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, IsConflictOn(err, FieldEmail))
	assert.False(t, IsConflictOn(err, FieldSessionToken))
	assert.False(t, IsConflictOn(errors.New("boom"), FieldEmail))
	assert.Equal(t, "email already exists", (&ConflictError{Field: FieldEmail}).Error())
}
