package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reqctx "github.com/dtroode/accounts-server/internal/api/http/context"
	"github.com/dtroode/accounts-server/internal/model"
	"github.com/dtroode/accounts-server/internal/testutil"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        model.NewValidationError(model.FieldEmail, "is required"),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "email is required",
		},
		{
			name:       "email conflict",
			err:        fmt.Errorf("wrapped: %w", &model.ConflictError{Field: model.FieldEmail}),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "email already exists",
		},
		{
			name:       "token conflict is internal",
			err:        &model.ConflictError{Field: model.FieldSessionToken},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
		{
			name:       "unauthorized",
			err:        model.ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "unauthorized",
		},
		{
			name:       "not found",
			err:        fmt.Errorf("lookup: %w", model.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantMsg:    "not found",
		},
		{
			name:       "unexpected",
			err:        errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, msg := statusFor(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	decode := func(body string, max int64) (loginRequest, error) {
		var dst loginRequest
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := decodeJSON(httptest.NewRecorder(), req, max, &dst)
		return dst, err
	}

	got, err := decode(`{"email":"a@x.com","password":"pw"}`, 1024)
	require.NoError(t, err)
	assert.Equal(t, loginRequest{Email: "a@x.com", Password: "pw"}, got)

	_, err = decode(``, 1024)
	assert.ErrorIs(t, err, errEmptyBody)

	_, err = decode(`{"email":"a@x.com"} {"email":"b@x.com"}`, 1024)
	assert.ErrorIs(t, err, errExtraData)

	_, err = decode(`{"email":"a@x.com","role":"admin"}`, 1024)
	assert.ErrorContains(t, err, "unknown field")

	_, err = decode(`{"email":"a@x.com","password":"pw"}`, 8)
	var maxBytesErr *http.MaxBytesError
	assert.ErrorAs(t, err, &maxBytesErr)
}

func TestWriteJSON_Headers(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusCreated, messageResponse{Message: "ok"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"message":"ok"}`, rr.Body.String())
}

// failingAuth fails every call with err.
type failingAuth struct{ err error }

func (f failingAuth) CreateUser(context.Context, model.NewUser) (model.User, error) {
	return model.User{}, f.err
}

func (f failingAuth) VerifyCredentials(context.Context, string, string) (model.User, error) {
	return model.User{}, f.err
}

func (f failingAuth) RenewSession(context.Context, uuid.UUID) (model.User, error) {
	return model.User{}, f.err
}

func (f failingAuth) RenewSessionByUpdateToken(context.Context, string) (model.User, error) {
	return model.User{}, f.err
}

func (f failingAuth) Logout(context.Context, uuid.UUID) (model.User, error) {
	return model.User{}, f.err
}

func TestAuth_InternalErrorsAreHidden(t *testing.T) {
	h := NewAuth(failingAuth{err: errors.New("pq: password authentication failed")}, reqctx.NewManager(), testutil.MakeNoopLogger(), 1024)

	req := httptest.NewRequest(http.MethodPost, "/login/", strings.NewReader(`{"email":"a@x.com","password":"pw"}`))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rr.Body.String())
}

func TestAuth_SessionWithoutToken(t *testing.T) {
	h := NewAuth(failingAuth{}, reqctx.NewManager(), testutil.MakeNoopLogger(), 1024)

	rr := httptest.NewRecorder()
	h.Session(rr, httptest.NewRequest(http.MethodPost, "/session/", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuth_SecretWithoutUser(t *testing.T) {
	h := NewAuth(failingAuth{}, reqctx.NewManager(), testutil.MakeNoopLogger(), 1024)

	rr := httptest.NewRecorder()
	h.Secret(rr, httptest.NewRequest(http.MethodGet, "/secret/", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestToSessionResponse(t *testing.T) {
	exp := time.Date(2024, 5, 2, 12, 0, 0, 0, time.FixedZone("X", 3600))
	u := model.User{
		ID:                uuid.New(),
		First:             "A",
		Last:              "B",
		Email:             "a@x.com",
		PasswordDigest:    "$2a$secret",
		SessionToken:      "s",
		UpdateToken:       "u",
		SessionExpiration: exp,
	}

	resp := toSessionResponse(u)
	assert.Equal(t, "s", resp.Token)
	assert.Equal(t, "u", resp.UpdateToken)
	assert.Equal(t, time.UTC, resp.SessionExpiration.Location())
	assert.True(t, exp.Equal(resp.SessionExpiration))

	public := toUserResponse(u)
	assert.Empty(t, public.Avatar)
	u.AvatarKey = "avatars/x.png"
	assert.Equal(t, "/api/user/"+u.ID.String()+"/avatar/", toUserResponse(u).Avatar)
}
