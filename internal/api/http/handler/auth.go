package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/api/http/middleware"
	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/model"
)

// AuthService defines registration and session operations.
type AuthService interface {
	CreateUser(ctx context.Context, in model.NewUser) (model.User, error)
	VerifyCredentials(ctx context.Context, email, password string) (model.User, error)
	RenewSession(ctx context.Context, userID uuid.UUID) (model.User, error)
	RenewSessionByUpdateToken(ctx context.Context, updateToken string) (model.User, error)
	Logout(ctx context.Context, userID uuid.UUID) (model.User, error)
}

// Auth handles HTTP endpoints for registration, login and sessions.
type Auth struct {
	authService    AuthService
	contextManager model.ContextManager
	logger         *logger.Logger
	maxBodyBytes   int64
}

// NewAuth creates a new Auth handler.
func NewAuth(
	authService AuthService,
	contextManager model.ContextManager,
	logger *logger.Logger,
	maxBodyBytes int64,
) *Auth {
	return &Auth{
		authService:    authService,
		contextManager: contextManager,
		logger:         logger,
		maxBodyBytes:   maxBodyBytes,
	}
}

// Register creates a user and returns its first session.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		badRequest(w, err)
		return
	}

	user, err := h.authService.CreateUser(r.Context(), model.NewUser{
		Email:    req.Email,
		Password: req.Password,
		First:    req.First,
		Last:     req.Last,
	})
	if err != nil {
		h.logger.Debug("Auth handler: registration rejected",
			"email", req.Email,
			"error", err.Error())
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(user))
}

// Login verifies the credentials and renews the session.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		badRequest(w, err)
		return
	}

	user, err := h.authService.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	user, err = h.authService.RenewSession(r.Context(), user.ID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(user))
}

// Session exchanges the update token from the Authorization header for a
// fresh session.
func (h *Auth) Session(w http.ResponseWriter, r *http.Request) {
	updateToken, ok := middleware.BearerToken(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing update token")
		return
	}

	user, err := h.authService.RenewSessionByUpdateToken(r.Context(), updateToken)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(user))
}

// Secret answers only to a valid session token.
func (h *Auth) Secret(w http.ResponseWriter, r *http.Request) {
	user, ok := h.contextManager.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: "Hello " + user.First + ", your session token is valid",
	})
}

// Logout invalidates both tokens of the current user.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	user, ok := h.contextManager.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if _, err := h.authService.Logout(r.Context(), user.ID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "user has successfully logged out"})
}
