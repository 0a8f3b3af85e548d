// Package cors answers cross-origin requests from a single trusted origin
// with credentials allowed.
package cors

import (
	"net/http"

	"github.com/go-chi/cors"
)

const maxAge = 600

// New allows origin to call the API with cookies. With an empty origin the
// middleware is a no-op.
func New(origin string) func(next http.Handler) http.Handler {
	if origin == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	handler := cors.Handler(cors.Options{
		AllowedOrigins:     []string{origin},
		AllowedMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:     []string{"X-Request-ID"},
		AllowCredentials:   true,
		MaxAge:             maxAge,
		OptionsPassthrough: true,
	})

	return func(next http.Handler) http.Handler {
		return handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPreflight(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
}
