// Package logger tags each request with an id and logs it once served.
package logger

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"accounts/internal/lib/idx"
)

const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// New attaches a request-scoped logger to the context and logs the request
// when it completes. An incoming X-Request-ID is reused when it is a ULID.
func New(log *slog.Logger) func(next http.Handler) http.Handler {
	log = log.With(slog.String("component", "middleware/logger"))
	log.Info("logger middleware enabled")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(RequestIDHeader)
			if !idx.Valid(reqID) {
				reqID = idx.New()
			}
			w.Header().Set(RequestIDHeader, reqID)

			entry := log.With(
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)

			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()

			defer func() {
				entry.Info("request completed",
					slog.Int("status", ww.status),
					slog.Int("bytes", ww.bytes),
					slog.String("duration", time.Since(start).String()),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(WithContext(r.Context(), entry)))
		})
	}
}

func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

// FromContext returns the request logger, or fallback when none is set.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return fallback
}

type responseWriter struct {
	http.ResponseWriter

	status int
	bytes  int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
