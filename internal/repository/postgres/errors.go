package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/accounts-server/internal/model"
)

const uniqueViolation = "23505"

var constraintFields = map[string]string{
	"users_email_key":         model.FieldEmail,
	"users_session_token_key": model.FieldSessionToken,
	"users_update_token_key":  model.FieldUpdateToken,
	"users_pkey":              "id",
}

// conflictFromError converts unique violations into *model.ConflictError.
// Other errors are returned unchanged.
func conflictFromError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}

	field, ok := constraintFields[pgErr.ConstraintName]
	if !ok {
		field = pgErr.ConstraintName
	}
	return &model.ConflictError{Field: field}
}
