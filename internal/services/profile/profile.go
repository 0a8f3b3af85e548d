// Package profile edits account details of an authenticated user.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"accounts/internal/assets"
	"accounts/internal/domain/models"
	"accounts/internal/lib/logger/sl"
	"accounts/internal/storage"
)

var (
	ErrFieldsRequired    = errors.New("all fields are required")
	ErrAvatarMissing     = errors.New("avatar file is missing")
	ErrCoverImageMissing = errors.New("cover image file is missing")
	ErrEmailTaken        = errors.New("email is already taken")
	ErrUserNotFound      = errors.New("user not found")
)

type UserUpdater interface {
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.User, error)
	UpdateAvatar(ctx context.Context, userID, url string) (*models.User, error)
	UpdateCoverImage(ctx context.Context, userID, url string) (*models.User, error)
}

type Profile struct {
	logger   *slog.Logger
	updater  UserUpdater
	uploader assets.Uploader
}

func New(logger *slog.Logger, updater UserUpdater, uploader assets.Uploader) *Profile {
	return &Profile{
		logger:   logger,
		updater:  updater,
		uploader: uploader,
	}
}

func (p *Profile) UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.User, error) {
	const op = "profile.UpdateAccount"
	log := p.logger.With(slog.String("op", op), slog.String("userID", userID))

	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))

	if fullName == "" || email == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrFieldsRequired)
	}

	user, err := p.updater.UpdateAccount(ctx, userID, fullName, email)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserAlreadyExists):
			log.Warn("email already taken", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		case errors.Is(err, storage.ErrUserNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to update account", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("account updated")

	return user, nil
}

// UpdateAvatar uploads f and stores its URL as the new avatar.
func (p *Profile) UpdateAvatar(ctx context.Context, userID string, f *assets.File) (*models.User, error) {
	const op = "profile.UpdateAvatar"

	user, err := p.replaceImage(ctx, op, userID, f, ErrAvatarMissing, p.updater.UpdateAvatar)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateCoverImage uploads f and stores its URL as the new cover image.
func (p *Profile) UpdateCoverImage(ctx context.Context, userID string, f *assets.File) (*models.User, error) {
	const op = "profile.UpdateCoverImage"

	user, err := p.replaceImage(ctx, op, userID, f, ErrCoverImageMissing, p.updater.UpdateCoverImage)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (p *Profile) replaceImage(
	ctx context.Context,
	op string,
	userID string,
	f *assets.File,
	errMissing error,
	save func(ctx context.Context, userID, url string) (*models.User, error),
) (*models.User, error) {
	log := p.logger.With(slog.String("op", op), slog.String("userID", userID))

	if f == nil {
		return nil, errMissing
	}

	url, err := p.uploader.Upload(ctx, *f)
	if err != nil {
		if errors.Is(err, assets.ErrEmptyFile) {
			return nil, errMissing
		}
		log.Error("failed to upload image", sl.Err(err))
		return nil, err
	}

	user, err := save(ctx, userID, url)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		log.Error("failed to save image url", sl.Err(err))
		return nil, err
	}

	log.Info("image updated", slog.String("kind", string(f.Kind)))

	return user, nil
}
