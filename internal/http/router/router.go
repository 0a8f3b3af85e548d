// Package router wires handlers and middleware into the HTTP mux.
package router

import (
	"log/slog"
	"net/http"
	"time"

	"accounts/internal/http/handlers/channels"
	"accounts/internal/http/handlers/health"
	"accounts/internal/http/handlers/users"
	"accounts/internal/http/middleware/auth"
	"accounts/internal/http/middleware/cors"
	"accounts/internal/http/middleware/logger"
	"accounts/internal/http/middleware/ratelimit"
)

const readyTimeout = 2 * time.Second

type Middleware func(http.Handler) http.Handler

// Chain wraps h so that mws run in the order given.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type Config struct {
	Version    string
	CORSOrigin string
	RateLimit  ratelimit.Config
	// ClientKey keys the rate limit. Defaults to ratelimit.ClientIP.
	ClientKey ratelimit.KeyFunc
	// StaticDir is served at /static/ when set.
	StaticDir string
}

type Deps struct {
	Users    *users.Handler
	Channels *channels.Handler
	Verifier auth.TokenVerifier
	Profiles auth.UserProvider
	Store    health.Pinger
}

func New(log *slog.Logger, cfg Config, d Deps) http.Handler {
	mux := http.NewServeMux()

	gate := Middleware(auth.New(log, d.Verifier, d.Profiles))
	clientKey := cfg.ClientKey
	if clientKey == nil {
		clientKey = ratelimit.ClientIP
	}
	strict := Middleware(ratelimit.New(log, cfg.RateLimit, clientKey))

	public := func(h http.HandlerFunc) http.Handler { return Chain(h, strict) }
	protected := func(h http.HandlerFunc) http.Handler { return Chain(h, gate) }

	mux.Handle("POST /api/v1/users/register", public(d.Users.Register))
	mux.Handle("POST /api/v1/users/login", public(d.Users.Login))
	mux.Handle("POST /api/v1/users/refresh-token", public(d.Users.RefreshToken))

	mux.Handle("GET /api/v1/users/logout", protected(d.Users.Logout))
	mux.Handle("POST /api/v1/users/logout", protected(d.Users.Logout))
	mux.Handle("POST /api/v1/users/change-password", protected(d.Users.ChangePassword))
	mux.Handle("GET /api/v1/users/current-user", protected(d.Users.CurrentUser))
	mux.Handle("PATCH /api/v1/users/update-account", protected(d.Users.UpdateAccount))
	mux.Handle("PATCH /api/v1/users/avatar", protected(d.Users.UpdateAvatar))
	mux.Handle("PATCH /api/v1/users/cover-image", protected(d.Users.UpdateCoverImage))

	mux.Handle("GET /api/v1/channels/{username}", protected(d.Channels.Channel))
	mux.Handle("POST /api/v1/channels/{username}/subscription", protected(d.Channels.Subscribe))
	mux.Handle("DELETE /api/v1/channels/{username}/subscription", protected(d.Channels.Unsubscribe))

	startTime := time.Now()
	mux.Handle("GET /livez", health.Livez(startTime, cfg.Version))
	mux.Handle("GET /readyz", health.Readyz(log, startTime, cfg.Version, d.Store, readyTimeout))

	if cfg.StaticDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	}

	return Chain(mux,
		logger.New(log),
		cors.New(cfg.CORSOrigin),
	)
}
