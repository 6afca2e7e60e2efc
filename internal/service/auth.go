package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/model"
)

// maxPasswordBytes is the longest password bcrypt can digest.
const maxPasswordBytes = 72

// Auth event names reported to the EventRecorder.
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventRenew          = "renew"
	EventRefresh        = "refresh"
	EventPasswordChange = "password_change"
	EventLogout         = "logout"
)

// Auth owns user credentials and the session lifecycle.
type Auth struct {
	userStore model.UserStore
	txManager model.TxManager
	hasher    model.PasswordHasher
	sessions  *sessionIssuer
	recorder  model.EventRecorder
	logger    *logger.Logger

	revokeOnPasswordChange bool

	dummyOnce   sync.Once
	dummyDigest string
}

// Option configures Auth.
type Option func(*Auth)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Auth) { a.sessions.now = now }
}

// WithSessionTTL sets how long a minted session token stays valid.
func WithSessionTTL(ttl time.Duration) Option {
	return func(a *Auth) {
		if ttl > 0 {
			a.sessions.ttl = ttl
		}
	}
}

// WithRevokeOnPasswordChange makes ChangePassword rotate both tokens.
func WithRevokeOnPasswordChange(revoke bool) Option {
	return func(a *Auth) { a.revokeOnPasswordChange = revoke }
}

// WithRecorder reports auth events to r.
func WithRecorder(r model.EventRecorder) Option {
	return func(a *Auth) {
		if r != nil {
			a.recorder = r
		}
	}
}

func NewAuth(
	userStore model.UserStore,
	txManager model.TxManager,
	hasher model.PasswordHasher,
	tokens model.TokenGenerator,
	logger *logger.Logger,
	opts ...Option,
) *Auth {
	a := &Auth{
		userStore: userStore,
		txManager: txManager,
		hasher:    hasher,
		sessions: &sessionIssuer{
			tokens: tokens,
			ttl:    model.DefaultSessionTTL,
			now:    time.Now,
		},
		recorder: noopRecorder{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CreateUser registers a new account and mints its first session.
func (a *Auth) CreateUser(ctx context.Context, in model.NewUser) (model.User, error) {
	user, err := a.createUser(ctx, in)
	a.record(EventRegister, err)
	return user, err
}

func (a *Auth) createUser(ctx context.Context, in model.NewUser) (model.User, error) {
	in.Email = normalizeEmail(in.Email)
	in.First = strings.TrimSpace(in.First)
	in.Last = strings.TrimSpace(in.Last)

	if err := validateNewUser(in); err != nil {
		return model.User{}, err
	}

	a.logger.Debug("Auth service: registering user",
		"email", in.Email)

	_, err := a.userStore.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		a.logger.Info("Auth service: email already registered",
			"email", in.Email)
		return model.User{}, &model.ConflictError{Field: model.FieldEmail}
	case !errors.Is(err, model.ErrNotFound):
		a.logger.Error("Auth service: failed to get user by email",
			"email", in.Email,
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	digest, err := a.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := a.sessions.now()
	user := model.User{
		ID:             uuid.New(),
		First:          in.First,
		Last:           in.Last,
		Email:          in.Email,
		PasswordDigest: digest,
		CreatedAt:      now,
	}
	if err := a.sessions.issue(&user); err != nil {
		return model.User{}, err
	}

	created, err := a.userStore.Create(ctx, user)
	if err != nil {
		if model.IsConflictOn(err, model.FieldEmail) {
			a.logger.Info("Auth service: email registered concurrently",
				"email", in.Email)
			return model.User{}, &model.ConflictError{Field: model.FieldEmail}
		}
		a.logger.Error("Auth service: failed to create user",
			"email", in.Email,
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	a.logger.Info("Auth service: user registered",
		"user_id", created.ID)

	return created, nil
}

// VerifyCredentials checks an email/password pair. It never touches the
// session. Unknown emails and wrong passwords both yield ErrUnauthorized.
func (a *Auth) VerifyCredentials(ctx context.Context, email, password string) (model.User, error) {
	user, err := a.verifyCredentials(ctx, email, password)
	a.record(EventLogin, err)
	return user, err
}

func (a *Auth) verifyCredentials(ctx context.Context, email, password string) (model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return model.User{}, model.NewValidationError(model.FieldEmail, "is required")
	}
	if password == "" {
		return model.User{}, model.NewValidationError(model.FieldPassword, "is required")
	}

	user, err := a.userStore.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			a.compareDummy(password)
			a.logger.Debug("Auth service: login for unknown email",
				"email", email)
			return model.User{}, model.ErrUnauthorized
		}
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	if err := a.checkPassword(user, password); err != nil {
		return model.User{}, err
	}

	return user, nil
}

// RenewSession replaces the session token, update token and expiration of
// the user in a single transaction.
func (a *Auth) RenewSession(ctx context.Context, userID uuid.UUID) (model.User, error) {
	var renewed model.User
	err := a.txManager.WithTx(ctx, func(ctx context.Context, users model.UserStore) error {
		user, err := users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		renewed, err = a.renew(ctx, users, user)
		return err
	})
	a.record(EventRenew, err)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		a.logger.Error("Auth service: failed to renew session",
			"user_id", userID,
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to renew session: %w", err)
	}

	a.logger.Debug("Auth service: session renewed",
		"user_id", userID)

	return renewed, nil
}

// RenewSessionByUpdateToken mints a new session for the holder of an update
// token without asking for the password.
func (a *Auth) RenewSessionByUpdateToken(ctx context.Context, updateToken string) (model.User, error) {
	user, err := a.renewByUpdateToken(ctx, updateToken)
	a.record(EventRefresh, err)
	return user, err
}

func (a *Auth) renewByUpdateToken(ctx context.Context, updateToken string) (model.User, error) {
	if updateToken == "" {
		return model.User{}, model.ErrUnauthorized
	}

	var renewed model.User
	err := a.txManager.WithTx(ctx, func(ctx context.Context, users model.UserStore) error {
		user, err := users.GetByUpdateTokenForUpdate(ctx, updateToken)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrUnauthorized
			}
			return err
		}
		if !tokensEqual(user.UpdateToken, updateToken) {
			return model.ErrUnauthorized
		}
		renewed, err = a.renew(ctx, users, user)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrUnauthorized) {
			return model.User{}, model.ErrUnauthorized
		}
		a.logger.Error("Auth service: failed to renew session by update token",
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to renew session: %w", err)
	}

	a.logger.Debug("Auth service: session refreshed",
		"user_id", renewed.ID)

	return renewed, nil
}

// VerifySessionToken reports whether token is the user's current session
// token and has not expired.
func (a *Auth) VerifySessionToken(user model.User, token string) bool {
	return a.sessions.valid(user, token)
}

// GetUserBySessionToken looks up the holder of token without checking
// expiration.
func (a *Auth) GetUserBySessionToken(ctx context.Context, token string) (model.User, error) {
	user, err := a.userStore.GetBySessionToken(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by session token: %w", err)
	}
	return user, nil
}

// Authenticate resolves a bearer session token to its user. Unknown,
// mismatched and expired tokens all yield ErrUnauthorized.
func (a *Auth) Authenticate(ctx context.Context, token string) (model.User, error) {
	user, err := a.GetUserBySessionToken(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrUnauthorized
		}
		return model.User{}, err
	}

	if !a.VerifySessionToken(user, token) {
		return model.User{}, model.ErrUnauthorized
	}

	return user, nil
}

// ChangePassword replaces the digest after verifying oldPassword. A wrong
// old password yields ErrUnauthorized and leaves the digest unchanged.
func (a *Auth) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) (model.User, error) {
	user, err := a.changePassword(ctx, userID, oldPassword, newPassword)
	a.record(EventPasswordChange, err)
	return user, err
}

func (a *Auth) changePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) (model.User, error) {
	if oldPassword == "" {
		return model.User{}, model.NewValidationError("old_password", "is required")
	}
	if err := validatePassword("new_password", newPassword); err != nil {
		return model.User{}, err
	}

	current, err := a.GetUser(ctx, userID)
	if err != nil {
		return model.User{}, err
	}

	if err := a.checkPassword(current, oldPassword); err != nil {
		return model.User{}, err
	}

	digest, err := a.hasher.Hash(newPassword)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var updated model.User
	err = a.txManager.WithTx(ctx, func(ctx context.Context, users model.UserStore) error {
		locked, err := users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		// The old password was checked against current; refuse if the
		// digest moved since then.
		if locked.PasswordDigest != current.PasswordDigest {
			return model.ErrUnauthorized
		}

		locked.PasswordDigest = digest
		locked.UpdatedAt = a.sessions.now()
		if a.revokeOnPasswordChange {
			if err := a.sessions.issue(&locked); err != nil {
				return err
			}
		}

		updated, err = users.Update(ctx, locked)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrUnauthorized) {
			return model.User{}, err
		}
		a.logger.Error("Auth service: failed to change password",
			"user_id", userID,
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to change password: %w", err)
	}

	a.logger.Info("Auth service: password changed",
		"user_id", userID,
		"sessions_rotated", a.revokeOnPasswordChange)

	return updated, nil
}

// Logout clears both tokens and expires the session immediately.
func (a *Auth) Logout(ctx context.Context, userID uuid.UUID) (model.User, error) {
	var out model.User
	err := a.txManager.WithTx(ctx, func(ctx context.Context, users model.UserStore) error {
		user, err := users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		a.sessions.clear(&user)
		out, err = users.Update(ctx, user)
		return err
	})
	a.record(EventLogout, err)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to logout: %w", err)
	}

	a.logger.Info("Auth service: user logged out",
		"user_id", userID)

	return out, nil
}

func (a *Auth) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	user, err := a.userStore.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func (a *Auth) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := a.userStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// UpdateProfile applies the non-nil fields of upd.
func (a *Auth) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (model.User, error) {
	if err := normalizeProfile(&upd); err != nil {
		return model.User{}, err
	}

	var updated model.User
	err := a.txManager.WithTx(ctx, func(ctx context.Context, users model.UserStore) error {
		user, err := users.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}

		if upd.First != nil {
			user.First = *upd.First
		}
		if upd.Last != nil {
			user.Last = *upd.Last
		}
		if upd.Email != nil {
			user.Email = *upd.Email
		}
		user.UpdatedAt = a.sessions.now()

		updated, err = users.Update(ctx, user)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.User{}, model.ErrNotFound
		case model.IsConflictOn(err, model.FieldEmail):
			return model.User{}, &model.ConflictError{Field: model.FieldEmail}
		}
		return model.User{}, fmt.Errorf("failed to update profile: %w", err)
	}

	a.logger.Info("Auth service: profile updated",
		"user_id", id)

	return updated, nil
}

func (a *Auth) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := a.userStore.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}

	a.logger.Info("Auth service: user deleted",
		"user_id", id)

	return nil
}

func (a *Auth) renew(ctx context.Context, users model.UserStore, user model.User) (model.User, error) {
	if err := a.sessions.issue(&user); err != nil {
		return model.User{}, err
	}
	return users.Update(ctx, user)
}

func (a *Auth) checkPassword(user model.User, password string) error {
	err := a.hasher.Compare(user.PasswordDigest, password)
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrPasswordMismatch) {
		a.logger.Debug("Auth service: password mismatch",
			"user_id", user.ID)
		return model.ErrUnauthorized
	}
	return fmt.Errorf("failed to verify password: %w", err)
}

// compareDummy spends the same hashing work as a real comparison.
func (a *Auth) compareDummy(password string) {
	a.dummyOnce.Do(func() {
		digest, err := a.hasher.Hash("not-a-real-password")
		if err == nil {
			a.dummyDigest = digest
		}
	})
	if a.dummyDigest != "" {
		_ = a.hasher.Compare(a.dummyDigest, password)
	}
}

func (a *Auth) record(event string, err error) {
	a.recorder.RecordAuthEvent(event, outcome(err))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrNotFound),
		model.IsConflictOn(err, model.FieldEmail):
		return "rejected"
	default:
		return "error"
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return model.NewValidationError(model.FieldEmail, "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewValidationError(model.FieldEmail, "is not a valid address")
	}
	return nil
}

func validatePassword(field, password string) error {
	if password == "" {
		return model.NewValidationError(field, "is required")
	}
	if len(password) > maxPasswordBytes {
		return model.NewValidationError(field, fmt.Sprintf("must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func validateNewUser(in model.NewUser) error {
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validatePassword(model.FieldPassword, in.Password); err != nil {
		return err
	}
	if in.First == "" {
		return model.NewValidationError(model.FieldFirst, "is required")
	}
	if in.Last == "" {
		return model.NewValidationError(model.FieldLast, "is required")
	}
	return nil
}

func normalizeProfile(upd *model.ProfileUpdate) error {
	if upd.First == nil && upd.Last == nil && upd.Email == nil {
		return model.NewValidationError("profile", "has no fields to update")
	}
	if upd.First != nil {
		first := strings.TrimSpace(*upd.First)
		if first == "" {
			return model.NewValidationError(model.FieldFirst, "must not be empty")
		}
		upd.First = &first
	}
	if upd.Last != nil {
		last := strings.TrimSpace(*upd.Last)
		if last == "" {
			return model.NewValidationError(model.FieldLast, "must not be empty")
		}
		upd.Last = &last
	}
	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return err
		}
		upd.Email = &email
	}
	return nil
}
