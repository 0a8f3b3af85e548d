// Package cookies sets and clears the token cookies.
package cookies

import (
	"net/http"
	"strings"
	"time"

	"accounts/internal/domain/models"
)

const (
	AccessToken  = "accessToken"
	RefreshToken = "refreshToken"
)

type Config struct {
	Secure     bool
	SameSite   http.SameSite
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ParseSameSite maps a config value to http.SameSite, defaulting to Lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (c Config) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, c.cookie(AccessToken, pair.AccessToken, c.AccessTTL))
	http.SetCookie(w, c.cookie(RefreshToken, pair.RefreshToken, c.RefreshTTL))
}

func (c Config) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessToken, RefreshToken} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

// Value returns the cookie value or "" when it is absent.
func Value(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c Config) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}
