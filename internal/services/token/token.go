// Package token owns the access/refresh token lifecycle: issuing a pair,
// rotating a refresh token, revoking it, and verifying access tokens.
//
// Only the most recently issued refresh token of a user is accepted. The
// stored copy is the source of truth; a structurally valid token that does
// not match it is rejected.
package token

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"accounts/internal/domain/models"
	"accounts/internal/lib/jwt"
	"accounts/internal/lib/logger/sl"
	"accounts/internal/storage"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenRequired = errors.New("refresh token is required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrUserNotFound  = errors.New("user not found")
)

// Config holds signing keys and lifetimes. It is built once at startup.
type Config struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

type UserProvider interface {
	User(ctx context.Context, userID string) (*models.User, error)
}

type RefreshTokenSaver interface {
	SetRefreshToken(ctx context.Context, userID, token string) error
	SwapRefreshToken(ctx context.Context, userID, expected, token string) error
}

type Service struct {
	logger       *slog.Logger
	userProvider UserProvider
	tokenSaver   RefreshTokenSaver
	cfg          Config
}

func New(
	logger *slog.Logger,
	userProvider UserProvider,
	tokenSaver RefreshTokenSaver,
	cfg Config,
) *Service {
	return &Service{
		logger:       logger,
		userProvider: userProvider,
		tokenSaver:   tokenSaver,
		cfg:          cfg,
	}
}

// refreshState classifies a presented refresh token.
type refreshState int

const (
	refreshOK refreshState = iota
	refreshAbsent
	refreshMalformed
	refreshStale
)

func (s refreshState) String() string {
	switch s {
	case refreshOK:
		return "ok"
	case refreshAbsent:
		return "absent"
	case refreshMalformed:
		return "malformed"
	case refreshStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Issue mints a new token pair for the user and stores the refresh token,
// replacing any previous one.
func (s *Service) Issue(ctx context.Context, userID string) (models.TokenPair, error) {
	const op = "token.Issue"
	log := s.logger.With(
		slog.String("op", op),
		slog.String("userID", userID),
	)

	user, err := s.userProvider.User(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to get user", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issue(ctx, user, "")
	if err != nil {
		log.Error("failed to issue tokens", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens issued")

	return pair, nil
}

// Rotate exchanges the current refresh token for a new pair. A token that
// was already rotated or revoked is rejected with ErrInvalidToken.
func (s *Service) Rotate(ctx context.Context, presented string) (models.TokenPair, error) {
	const op = "token.Rotate"
	log := s.logger.With(slog.String("op", op))

	user, state, err := s.checkRefresh(ctx, presented)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("refresh token subject not found", sl.Err(err))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to check refresh token", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	switch state {
	case refreshOK:
	case refreshAbsent:
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrTokenRequired)
	default:
		log.Warn("refresh token rejected", slog.String("reason", state.String()))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	pair, err := s.issue(ctx, user, presented)
	if err != nil {
		if errors.Is(err, storage.ErrTokenMismatch) {
			log.Warn("refresh token rotated concurrently", slog.String("userID", user.ID))
			return models.TokenPair{}, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		log.Error("failed to issue tokens", sl.Err(err))
		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("tokens rotated", slog.String("userID", user.ID))

	return pair, nil
}

// Revoke clears the stored refresh token. Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, userID string) error {
	const op = "token.Revoke"
	log := s.logger.With(
		slog.String("op", op),
		slog.String("userID", userID),
	)

	if err := s.tokenSaver.SetRefreshToken(ctx, userID, ""); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found", sl.Err(err))
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}
		log.Error("failed to clear refresh token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh token revoked")

	return nil
}

// VerifyAccess checks an access token and returns its subject.
func (s *Service) VerifyAccess(token string) (string, error) {
	const op = "token.VerifyAccess"

	claims, err := jwt.ParseToken(token, s.cfg.AccessSecret)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrInvalidToken, err)
	}

	return claims.UserID(), nil
}

// checkRefresh verifies the presented token and compares it with the stored
// one. The returned error is reserved for store failures and missing users.
func (s *Service) checkRefresh(ctx context.Context, presented string) (*models.User, refreshState, error) {
	if presented == "" {
		return nil, refreshAbsent, nil
	}

	claims, err := jwt.ParseToken(presented, s.cfg.RefreshSecret)
	if err != nil {
		return nil, refreshMalformed, nil
	}

	user, err := s.userProvider.User(ctx, claims.UserID())
	if err != nil {
		return nil, refreshMalformed, err
	}

	if subtle.ConstantTimeCompare([]byte(presented), []byte(user.RefreshToken)) != 1 {
		return user, refreshStale, nil
	}

	return user, refreshOK, nil
}

// issue signs a new pair and persists the refresh token. When expected is
// set, the store only accepts the write if it still holds expected.
func (s *Service) issue(ctx context.Context, user *models.User, expected string) (models.TokenPair, error) {
	accessToken, err := jwt.NewToken(jwt.Claims{
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject: user.ID,
		},
	}, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("access token: %w", err)
	}

	refreshToken, err := jwt.NewToken(jwt.Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject: user.ID,
		},
	}, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}

	if expected == "" {
		err = s.tokenSaver.SetRefreshToken(ctx, user.ID, refreshToken)
	} else {
		err = s.tokenSaver.SwapRefreshToken(ctx, user.ID, expected, refreshToken)
	}
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("save refresh token: %w", err)
	}

	return models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
