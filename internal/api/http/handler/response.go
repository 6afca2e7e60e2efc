package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/model"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	First    string `json:"first"`
	Last     string `json:"last"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateProfileRequest struct {
	First *string `json:"first"`
	Last  *string `json:"last"`
	Email *string `json:"email"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type avatarRequest struct {
	ImageData string `json:"image_data"`
}

// sessionResponse is the user as seen by its owner, tokens included.
type sessionResponse struct {
	ID                uuid.UUID `json:"id"`
	First             string    `json:"first"`
	Last              string    `json:"last"`
	Email             string    `json:"email"`
	Token             string    `json:"token"`
	UpdateToken       string    `json:"update_token"`
	SessionExpiration time.Time `json:"session_expiration"`
}

// userResponse is the user as seen by anyone else.
type userResponse struct {
	ID     uuid.UUID `json:"id"`
	First  string    `json:"first"`
	Last   string    `json:"last"`
	Email  string    `json:"email"`
	Avatar string    `json:"avatar,omitempty"`
}

type userListResponse struct {
	Users []userResponse `json:"user"`
}

func toSessionResponse(u model.User) sessionResponse {
	return sessionResponse{
		ID:                u.ID,
		First:             u.First,
		Last:              u.Last,
		Email:             u.Email,
		Token:             u.SessionToken,
		UpdateToken:       u.UpdateToken,
		SessionExpiration: u.SessionExpiration.UTC(),
	}
}

func toUserResponse(u model.User) userResponse {
	resp := userResponse{
		ID:    u.ID,
		First: u.First,
		Last:  u.Last,
		Email: u.Email,
	}
	if u.AvatarKey != "" {
		resp.Avatar = "/api/user/" + u.ID.String() + "/avatar/"
	}
	return resp
}

func toUserListResponse(users []model.User) userListResponse {
	out := userListResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		out.Users = append(out.Users, toUserResponse(u))
	}
	return out
}
