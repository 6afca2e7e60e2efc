package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/model"
)

// UserService defines profile and account operations.
type UserService interface {
	GetUser(ctx context.Context, id uuid.UUID) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (model.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) (model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// AvatarService defines profile image operations.
type AvatarService interface {
	Upload(ctx context.Context, userID uuid.UUID, imageData string) (model.User, error)
	Open(ctx context.Context, userID uuid.UUID) (io.ReadCloser, string, error)
	Remove(ctx context.Context, user model.User) error
}

// User handles HTTP endpoints under /api/user/.
type User struct {
	userService    UserService
	avatarService  AvatarService
	contextManager model.ContextManager
	logger         *logger.Logger
	maxBodyBytes   int64
}

// NewUser creates a new User handler. avatarService may be nil when object
// storage is not configured.
func NewUser(
	userService UserService,
	avatarService AvatarService,
	contextManager model.ContextManager,
	logger *logger.Logger,
	maxBodyBytes int64,
) *User {
	return &User{
		userService:    userService,
		avatarService:  avatarService,
		contextManager: contextManager,
		logger:         logger,
		maxBodyBytes:   maxBodyBytes,
	}
}

// AvatarsEnabled reports whether avatar routes can be served.
func (h *User) AvatarsEnabled() bool {
	return h.avatarService != nil
}

func (h *User) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers(r.Context())
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserListResponse(users))
}

func (h *User) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(r.Context(), id)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Update changes the name and email of the current user.
func (h *User) Update(w http.ResponseWriter, r *http.Request) {
	current, ok := h.contextManager.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req updateProfileRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		badRequest(w, err)
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), current.ID, model.ProfileUpdate{
		First: req.First,
		Last:  req.Last,
		Email: req.Email,
	})
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(user))
}

// ChangePassword replaces the password of the current user.
func (h *User) ChangePassword(w http.ResponseWriter, r *http.Request) {
	current, ok := h.contextManager.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		badRequest(w, err)
		return
	}

	user, err := h.userService.ChangePassword(r.Context(), current.ID, req.OldPassword, req.NewPassword)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	h.logger.Info("User handler: password changed",
		"user_id", current.ID)

	writeJSON(w, http.StatusOK, toSessionResponse(user))
}

// Delete removes the current user and its avatar.
func (h *User) Delete(w http.ResponseWriter, r *http.Request) {
	current, ok := h.contextManager.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.userService.DeleteUser(r.Context(), current.ID); err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	if h.avatarService != nil {
		if err := h.avatarService.Remove(r.Context(), current); err != nil {
			h.logger.Warn("User handler: failed to remove avatar of deleted user",
				"user_id", current.ID,
				"error", err.Error())
		}
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "user has been deleted"})
}

// UploadAvatar stores a base64 encoded image as the current user's avatar.
func (h *User) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	current, ok := h.contextManager.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.avatarService == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req avatarRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		badRequest(w, err)
		return
	}

	user, err := h.avatarService.Upload(r.Context(), current.ID, req.ImageData)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Avatar streams the avatar of the user named in the path.
func (h *User) Avatar(w http.ResponseWriter, r *http.Request) {
	if h.avatarService == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rc, contentType, err := h.avatarService.Open(r.Context(), id)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("User handler: failed to stream avatar",
			"user_id", id,
			"error", err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	return id, true
}
