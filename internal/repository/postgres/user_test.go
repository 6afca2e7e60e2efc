package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/accounts-server/internal/model"
)

var userColumnNames = []string{
	"id", "first", "last", "email", "password_digest", "session_token", "session_expiration",
	"update_token", "avatar_key", "created_at", "updated_at",
}

func newRepoWithMock(t *testing.T) (*UserRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepository(db), mock, db
}

func sampleUser() model.User {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return model.User{
		ID:                uuid.MustParse("7d7f2c4e-9a47-4c3e-8f4f-7a2b1c0e9d11"),
		First:             "A",
		Last:              "B",
		Email:             "a@x.com",
		PasswordDigest:    "$2a$04$digest",
		SessionToken:      "session-1",
		SessionExpiration: now.Add(24 * time.Hour),
		UpdateToken:       "update-1",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func nullValue(s string) driver.Value {
	if s == "" {
		return nil
	}
	return s
}

func userRows(users ...model.User) *sqlmock.Rows {
	rows := sqlmock.NewRows(userColumnNames)
	for _, u := range users {
		rows.AddRow(
			u.ID.String(), u.First, u.Last, u.Email, u.PasswordDigest,
			nullValue(u.SessionToken), u.SessionExpiration, nullValue(u.UpdateToken), nullValue(u.AvatarKey),
			u.CreatedAt, u.UpdatedAt,
		)
	}
	return rows
}

func TestUserRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	u := sampleUser()

	t.Run("found", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT .+ FROM users WHERE id = \$1$`).
			WithArgs(u.ID).
			WillReturnRows(userRows(u))

		got, err := repo.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT .+ FROM users WHERE id = \$1$`).
			WithArgs(u.ID).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, u.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT .+ FROM users WHERE id = \$1$`).
			WithArgs(u.ID).
			WillReturnError(errors.New("db down"))

		_, err := repo.GetByID(ctx, u.ID)
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrNotFound)
		assert.Contains(t, err.Error(), "failed to get user by id: db down")
	})
}

func TestUserRepository_GetByEmail(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	u := sampleUser()
	u.SessionToken = ""
	u.UpdateToken = ""

	mock.ExpectQuery(`^SELECT .+ FROM users WHERE email = \$1$`).
		WithArgs(u.Email).
		WillReturnRows(userRows(u))

	got, err := repo.GetByEmail(context.Background(), u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Empty(t, got.SessionToken)
	assert.Empty(t, got.UpdateToken)
}

func TestUserRepository_TokenLookups(t *testing.T) {
	ctx := context.Background()
	u := sampleUser()

	t.Run("session token", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT .+ FROM users WHERE session_token = \$1$`).
			WithArgs(u.SessionToken).
			WillReturnRows(userRows(u))

		got, err := repo.GetBySessionToken(ctx, u.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("update token", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT .+ FROM users WHERE update_token = \$1$`).
			WithArgs(u.UpdateToken).
			WillReturnRows(userRows(u))

		got, err := repo.GetByUpdateToken(ctx, u.UpdateToken)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("update token locks row", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT .+ FROM users WHERE update_token = \$1 FOR UPDATE$`).
			WithArgs(u.UpdateToken).
			WillReturnRows(userRows(u))

		got, err := repo.GetByUpdateTokenForUpdate(ctx, u.UpdateToken)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)
	})

	t.Run("id locks row", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(`^SELECT .+ FROM users WHERE id = \$1 FOR UPDATE$`).
			WithArgs(u.ID).
			WillReturnRows(userRows(u))

		got, err := repo.GetByIDForUpdate(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
	})

	t.Run("empty tokens never match", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)

		_, err := repo.GetBySessionToken(ctx, "")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = repo.GetByUpdateToken(ctx, "")
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = repo.GetByUpdateTokenForUpdate(ctx, "")
		assert.ErrorIs(t, err, model.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_List(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	first := sampleUser()
	second := sampleUser()
	second.ID = uuid.New()
	second.Email = "c@x.com"
	second.AvatarKey = "avatars/c.png"

	mock.ExpectQuery(`^SELECT .+ FROM users ORDER BY created_at, id$`).
		WillReturnRows(userRows(first, second))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a@x.com", got[0].Email)
	assert.Equal(t, "avatars/c.png", got[1].AvatarKey)
}

func TestUserRepository_List_Empty(t *testing.T) {
	repo, mock, _ := newRepoWithMock(t)
	mock.ExpectQuery(`^SELECT .+ FROM users ORDER BY`).
		WillReturnRows(sqlmock.NewRows(userColumnNames))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestUserRepository_Create(t *testing.T) {
	ctx := context.Background()
	u := sampleUser()
	q := `^INSERT INTO users \(id, first, last, email, password_digest, session_token, session_expiration, update_token, avatar_key, created_at, updated_at\) VALUES \(\$1, .+\$11\) RETURNING id`

	t.Run("success", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WithArgs(u.ID, u.First, u.Last, u.Email, u.PasswordDigest,
				u.SessionToken, u.SessionExpiration, u.UpdateToken, nil,
				u.CreatedAt, u.UpdatedAt).
			WillReturnRows(userRows(u))

		got, err := repo.Create(ctx, u)
		require.NoError(t, err)
		assert.Equal(t, u, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

		_, err := repo.Create(ctx, u)
		assert.ErrorIs(t, err, model.ErrConflict)
		assert.True(t, model.IsConflictOn(err, model.FieldEmail))
	})

	t.Run("duplicate session token", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_session_token_key"})

		_, err := repo.Create(ctx, u)
		assert.True(t, model.IsConflictOn(err, model.FieldSessionToken))
	})

	t.Run("other error", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WillReturnError(&pgconn.PgError{Code: "23502", ConstraintName: "users_first_not_null"})

		_, err := repo.Create(ctx, u)
		require.Error(t, err)
		assert.NotErrorIs(t, err, model.ErrConflict)
		assert.Contains(t, err.Error(), "failed to create user")
	})
}

func TestUserRepository_Update(t *testing.T) {
	ctx := context.Background()
	q := `^UPDATE users SET first = \$2, .+ WHERE id = \$1 RETURNING id`

	t.Run("cleared tokens are stored as NULL", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		u := sampleUser()
		u.SessionToken = ""
		u.UpdateToken = ""

		mock.ExpectQuery(q).
			WithArgs(u.ID, u.First, u.Last, u.Email, u.PasswordDigest,
				nil, u.SessionExpiration, nil, nil, u.UpdatedAt).
			WillReturnRows(userRows(u))

		got, err := repo.Update(ctx, u)
		require.NoError(t, err)
		assert.Empty(t, got.SessionToken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(q).WillReturnError(sql.ErrNoRows)

		_, err := repo.Update(ctx, sampleUser())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("update token collision", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectQuery(q).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_update_token_key"})

		_, err := repo.Update(ctx, sampleUser())
		assert.True(t, model.IsConflictOn(err, model.FieldUpdateToken))
	})
}

func TestUserRepository_Delete(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("success", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectExec(`^DELETE FROM users WHERE id = \$1$`).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.Delete(ctx, id))
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectExec(`^DELETE FROM users`).
			WithArgs(id).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, repo.Delete(ctx, id), model.ErrNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, _ := newRepoWithMock(t)
		mock.ExpectExec(`^DELETE FROM users`).
			WillReturnError(errors.New("db down"))

		err := repo.Delete(ctx, id)
		assert.ErrorContains(t, err, "failed to delete user")
	})
}
