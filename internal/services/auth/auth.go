package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"accounts/internal/assets"
	"accounts/internal/domain/models"
	"accounts/internal/lib/logger/sl"
	"accounts/internal/services/token"
	"accounts/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

type Auth struct {
	logger       *slog.Logger
	userSaver    UserSaver
	userProvider UserProvider
	tokens       TokenService
	uploader     assets.Uploader
}

type UserSaver interface {
	SaveUser(ctx context.Context, u models.NewUser) (*models.User, error)
	UpdatePassword(ctx context.Context, userID string, passHash []byte) error
}

type UserProvider interface {
	User(ctx context.Context, userID string) (*models.User, error)
	UserByLogin(ctx context.Context, username, email string) (*models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

type TokenService interface {
	Issue(ctx context.Context, userID string) (models.TokenPair, error)
	Rotate(ctx context.Context, presented string) (models.TokenPair, error)
	Revoke(ctx context.Context, userID string) error
}

var (
	ErrFieldsRequired       = errors.New("all fields are required")
	ErrAvatarRequired       = errors.New("avatar file is required")
	ErrLoginRequired        = errors.New("username or email is required")
	ErrPasswordRequired     = errors.New("password is required")
	ErrPasswordTooLong      = errors.New("password must be at most 72 bytes")
	ErrUserAlreadyExists    = errors.New("user with email or username already exists")
	ErrUserNotFound         = errors.New("user does not exist")
	ErrInvalidCredentials   = errors.New("invalid user credentials")
	ErrRefreshTokenRequired = errors.New("refresh token is required")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrInvalidOldPassword   = errors.New("invalid old password")
)

// RegisterInput is a registration request. CoverImage is optional.
type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	Avatar     *assets.File
	CoverImage *assets.File
}

// New returns a new instance of the Auth service.
func New(
	logger *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens TokenService,
	uploader assets.Uploader,
) *Auth {
	return &Auth{
		logger:       logger,
		userSaver:    userSaver,
		userProvider: userProvider,
		tokens:       tokens,
		uploader:     uploader,
	}
}

// Register validates the input, uploads the images and creates the user.
// The returned user carries no credentials.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	const op = "auth.Register"

	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = normalize(in.Email)
	in.Username = normalize(in.Username)

	log := a.logger.With(
		slog.String("op", op),
		slog.String("username", in.Username),
	)
	log.Info("register request")

	if in.FullName == "" || in.Email == "" || in.Username == "" || strings.TrimSpace(in.Password) == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrFieldsRequired)
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, fmt.Errorf("%s: %w", op, ErrPasswordTooLong)
	}

	exists, err := a.userProvider.UserExists(ctx, in.Username, in.Email)
	if err != nil {
		log.Error("failed to check user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if exists {
		log.Warn("user already exists")
		return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
	}

	if in.Avatar == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrAvatarRequired)
	}

	avatarURL, err := a.uploader.Upload(ctx, *in.Avatar)
	if err != nil {
		if errors.Is(err, assets.ErrEmptyFile) {
			return nil, fmt.Errorf("%s: %w", op, ErrAvatarRequired)
		}
		log.Error("failed to upload avatar", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var coverURL string
	if in.CoverImage != nil {
		coverURL, err = a.uploader.Upload(ctx, *in.CoverImage)
		if err != nil && !errors.Is(err, assets.ErrEmptyFile) {
			log.Error("failed to upload cover image", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.userSaver.SaveUser(ctx, models.NewUser{
		Username:   in.Username,
		Email:      in.Email,
		FullName:   in.FullName,
		PassHash:   passHash,
		Avatar:     avatarURL,
		CoverImage: coverURL,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUserAlreadyExists) {
			log.Warn("user already exists", sl.Err(err))
			return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}
		log.Error("failed to save user", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.String("userID", user.ID))

	return user, nil
}

// Login authenticates the user by username or email and issues a token pair.
func (a *Auth) Login(
	ctx context.Context,
	username string,
	email string,
	password string,
) (*models.User, models.TokenPair, error) {
	const op = "auth.Login"

	username = normalize(username)
	email = normalize(email)

	log := a.logger.With(slog.String("op", op))
	log.Info("login request", slog.String("username", username), slog.String("email", email))

	if username == "" && email == "" {
		return nil, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrLoginRequired)
	}
	if password == "" {
		return nil, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrPasswordRequired)
	}

	user, err := a.userProvider.UserByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return nil, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return nil, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Warn("invalid password", sl.Err(err))
		return nil, models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := a.tokens.Issue(ctx, user.ID)
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return nil, models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.String("userID", user.ID))

	return withoutCredentials(user), pair, nil
}

// Logout revokes the user's refresh token.
func (a *Auth) Logout(ctx context.Context, userID string) error {
	const op = "auth.Logout"
	log := a.logger.With(slog.String("op", op), slog.String("userID", userID))

	if err := a.tokens.Revoke(ctx, userID); err != nil {
		if errors.Is(err, token.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to revoke refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged out")

	return nil
}

// Refresh exchanges a refresh token for a new pair (rotation).
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "auth.Refresh"
	log := a.logger.With(slog.String("op", op))

	pair, err := a.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenRequired):
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrRefreshTokenRequired)
		case errors.Is(err, token.ErrInvalidToken), errors.Is(err, token.ErrUserNotFound):
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
		}
		log.Error("failed to rotate tokens", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	return pair, nil
}

// ChangePassword replaces the password after checking the old one. Issued
// tokens stay valid.
func (a *Auth) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	const op = "auth.ChangePassword"
	log := a.logger.With(slog.String("op", op), slog.String("userID", userID))

	if oldPassword == "" || strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%s: %w", op, ErrFieldsRequired)
	}
	if len(newPassword) > maxPasswordBytes {
		return fmt.Errorf("%s: %w", op, ErrPasswordTooLong)
	}

	user, err := a.userProvider.User(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(oldPassword)); err != nil {
		log.Warn("invalid old password")
		return fmt.Errorf("%s: %w", op, ErrInvalidOldPassword)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.userSaver.UpdatePassword(ctx, userID, passHash); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed")

	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func withoutCredentials(u *models.User) *models.User {
	out := *u
	out.PassHash = nil
	out.RefreshToken = ""
	return &out
}
