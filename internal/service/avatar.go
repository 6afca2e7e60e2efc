package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/dtroode/accounts-server/internal/logger"
	"github.com/dtroode/accounts-server/internal/model"
)

const avatarPrefix = "avatars"

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Avatar stores profile images in object storage and tracks their keys on
// the user record.
type Avatar struct {
	userStore model.UserStore
	txManager model.TxManager
	storage   model.Storage
	logger    *logger.Logger
	maxBytes  int64
}

func NewAvatar(
	userStore model.UserStore,
	txManager model.TxManager,
	storage model.Storage,
	logger *logger.Logger,
	maxBytes int64,
) *Avatar {
	return &Avatar{
		userStore: userStore,
		txManager: txManager,
		storage:   storage,
		logger:    logger,
		maxBytes:  maxBytes,
	}
}

// Upload decodes a base64 image (optionally as a data URI) and makes it the
// user's avatar. A previous avatar with a different key is removed.
func (a *Avatar) Upload(ctx context.Context, userID uuid.UUID, imageData string) (model.User, error) {
	contentType, data, err := decodeImage(imageData, a.maxBytes)
	if err != nil {
		return model.User{}, err
	}

	if _, err := a.userStore.GetByID(ctx, userID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}

	key := path.Join(avatarPrefix, userID.String()+avatarExtensions[contentType])
	err = a.storage.Upload(ctx, model.Object{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		a.logger.Error("Avatar service: failed to upload avatar",
			"user_id", userID,
			"key", key,
			"error", err.Error())
		return model.User{}, fmt.Errorf("failed to upload avatar: %w", err)
	}

	var previous string
	var updated model.User
	err = a.txManager.WithTx(ctx, func(ctx context.Context, users model.UserStore) error {
		user, err := users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		previous = user.AvatarKey
		user.AvatarKey = key
		updated, err = users.Update(ctx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to save avatar key: %w", err)
	}

	if previous != "" && previous != key {
		if err := a.storage.Delete(ctx, previous); err != nil {
			a.logger.Warn("Avatar service: failed to delete previous avatar",
				"user_id", userID,
				"key", previous,
				"error", err.Error())
		}
	}

	a.logger.Info("Avatar service: avatar uploaded",
		"user_id", userID,
		"key", key,
		"size", len(data))

	return updated, nil
}

// Open returns the user's avatar and its content type.
func (a *Avatar) Open(ctx context.Context, userID uuid.UUID) (io.ReadCloser, string, error) {
	user, err := a.userStore.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, "", model.ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get user by id: %w", err)
	}
	if user.AvatarKey == "" {
		return nil, "", model.ErrNotFound
	}

	exists, err := a.storage.Exists(ctx, user.AvatarKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check avatar: %w", err)
	}
	if !exists {
		return nil, "", model.ErrNotFound
	}

	rc, err := a.storage.Download(ctx, user.AvatarKey)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download avatar: %w", err)
	}

	return rc, contentTypeForKey(user.AvatarKey), nil
}

// Remove deletes the stored avatar of user, if any.
func (a *Avatar) Remove(ctx context.Context, user model.User) error {
	if user.AvatarKey == "" {
		return nil
	}
	if err := a.storage.Delete(ctx, user.AvatarKey); err != nil {
		return fmt.Errorf("failed to delete avatar: %w", err)
	}
	return nil
}

// decodeImage accepts "data:<type>;base64,<payload>" or a bare base64
// payload and returns the sniffed content type with the decoded bytes.
func decodeImage(imageData string, maxBytes int64) (string, []byte, error) {
	imageData = strings.TrimSpace(imageData)
	if imageData == "" {
		return "", nil, model.NewValidationError(model.FieldImage, "is required")
	}

	var declared string
	payload := imageData
	if rest, ok := strings.CutPrefix(imageData, "data:"); ok {
		header, body, found := strings.Cut(rest, ",")
		if !found || !strings.HasSuffix(header, ";base64") {
			return "", nil, model.NewValidationError(model.FieldImage, "must be a base64 data URI")
		}
		declared = strings.TrimSuffix(header, ";base64")
		payload = body
	}

	if int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return "", nil, model.NewValidationError(model.FieldImage, fmt.Sprintf("must be at most %d bytes", maxBytes))
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, model.NewValidationError(model.FieldImage, "is not valid base64")
	}
	if len(data) == 0 {
		return "", nil, model.NewValidationError(model.FieldImage, "is empty")
	}
	if int64(len(data)) > maxBytes {
		return "", nil, model.NewValidationError(model.FieldImage, fmt.Sprintf("must be at most %d bytes", maxBytes))
	}

	detected := http.DetectContentType(data)
	if _, ok := avatarExtensions[detected]; !ok {
		return "", nil, model.NewValidationError(model.FieldImage, "must be a png, jpeg, gif or webp image")
	}
	if declared != "" && declared != detected {
		return "", nil, model.NewValidationError(model.FieldImage, "does not match its declared type")
	}

	return detected, data, nil
}

func contentTypeForKey(key string) string {
	ext := path.Ext(key)
	for ct, e := range avatarExtensions {
		if e == ext {
			return ct
		}
	}
	return "application/octet-stream"
}
