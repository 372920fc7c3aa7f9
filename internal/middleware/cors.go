package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORSHandler returns a middleware that applies CORS headers based on allowedOrigins.
// Each entry in allowedOrigins must be a full origin (scheme + host, no trailing slash).
// The identity headers written by the access gate are allowed so the admin UI
// can call the API directly in development.
func NewCORSHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", HeaderUserID, HeaderUserRoles},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
	})
	return func(next http.Handler) http.Handler {
		return c.Handler(next)
	}
}
