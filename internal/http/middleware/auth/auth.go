// Package auth is the gate in front of protected routes. It resolves the
// access token of a request to a user and stores that user in the context.
package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"accounts/internal/domain/models"
	"accounts/internal/http/cookies"
	"accounts/internal/http/middleware/logger"
	"accounts/internal/lib/api/response"
	"accounts/internal/lib/logger/sl"
)

const (
	msgUnauthorized = "unauthorized request"
	msgInvalidToken = "invalid access token"
)

type TokenVerifier interface {
	VerifyAccess(token string) (userID string, err error)
}

// UserProvider must return the user without password hash or refresh token.
type UserProvider interface {
	UserProfile(ctx context.Context, userID string) (*models.User, error)
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*models.User)
	return u, ok && u != nil
}

// New rejects requests without a valid access token. The cookie takes
// precedence over the Authorization header.
func New(log *slog.Logger, verifier TokenVerifier, users UserProvider) func(next http.Handler) http.Handler {
	const op = "middleware.auth"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context(), log).With(slog.String("op", op))

			raw := extractToken(r)
			if raw == "" {
				log.Warn("access token missing")
				response.WriteError(w, http.StatusUnauthorized, msgUnauthorized)
				return
			}

			userID, err := verifier.VerifyAccess(raw)
			if err != nil {
				log.Warn("access token rejected", sl.Err(err))
				response.WriteError(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			user, err := users.UserProfile(r.Context(), userID)
			if err != nil {
				log.Warn("access token user not loaded", slog.String("userID", userID), sl.Err(err))
				response.WriteError(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func extractToken(r *http.Request) string {
	if v := cookies.Value(r, cookies.AccessToken); v != "" {
		return v
	}

	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}
