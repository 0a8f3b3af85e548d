// Package health serves the liveness and readiness probes.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"accounts/internal/lib/api/response"
	"accounts/internal/lib/logger/sl"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Response struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
	Storage string `json:"storage,omitempty"`
}

// Livez reports that the process is up.
func Livez(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.WriteJSON(w, http.StatusOK, Response{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// Readyz reports whether the store answers within timeout.
func Readyz(log *slog.Logger, startTime time.Time, version string, store Pinger, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := Response{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Storage: "ok",
		}
		code := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			log.Warn("storage not ready", sl.Err(err))
			resp.Status = "degraded"
			resp.Storage = "unavailable"
			code = http.StatusServiceUnavailable
		}

		response.WriteJSON(w, code, resp)
	}
}
