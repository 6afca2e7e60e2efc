package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

const userColumns = `id, first, last, email, password_digest, session_token, session_expiration,
		update_token, avatar_key, created_at, updated_at`

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var user model.User
	var session, update, avatar sql.NullString

	err := row.Scan(
		&user.ID, &user.First, &user.Last, &user.Email, &user.PasswordDigest,
		&session, &user.SessionExpiration, &update, &avatar,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}

	user.SessionToken = session.String
	user.UpdateToken = update.String
	user.AvatarKey = avatar.String

	return user, nil
}

// nullable stores empty strings as NULL so cleared tokens never collide.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *UserRepository) getOne(ctx context.Context, what, query string, arg any) (model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by %s: %w", what, err)
	}

	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, "id", query, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, "email", query, email)
}

func (r *UserRepository) GetBySessionToken(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, model.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE session_token = $1`
	return r.getOne(ctx, "session token", query, token)
}

func (r *UserRepository) GetByUpdateToken(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, model.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE update_token = $1`
	return r.getOne(ctx, "update token", query, token)
}

func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, "id", query, id)
}

func (r *UserRepository) GetByUpdateTokenForUpdate(ctx context.Context, token string) (model.User, error) {
	if token == "" {
		return model.User{}, model.ErrNotFound
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE update_token = $1 FOR UPDATE`
	return r.getOne(ctx, "update token", query, token)
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `INSERT INTO users (` + userColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  RETURNING ` + userColumns

	saved, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.ID, user.First, user.Last, user.Email, user.PasswordDigest,
		nullable(user.SessionToken), user.SessionExpiration, nullable(user.UpdateToken), nullable(user.AvatarKey),
		user.CreatedAt, user.UpdatedAt,
	))
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", conflictFromError(err))
	}

	return saved, nil
}

func (r *UserRepository) Update(ctx context.Context, user model.User) (model.User, error) {
	query := `UPDATE users
			  SET first = $2, last = $3, email = $4, password_digest = $5, session_token = $6,
			      session_expiration = $7, update_token = $8, avatar_key = $9, updated_at = $10
			  WHERE id = $1
			  RETURNING ` + userColumns

	saved, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.ID, user.First, user.Last, user.Email, user.PasswordDigest,
		nullable(user.SessionToken), user.SessionExpiration, nullable(user.UpdateToken), nullable(user.AvatarKey),
		user.UpdatedAt,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to update user: %w", conflictFromError(err))
	}

	return saved, nil
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}

	return nil
}
