// Package middleware provides HTTP middleware for the gearledger API server.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewSlogLogger returns a middleware that logs each request as a structured
// line via the provided slog.Logger. It captures method, path, HTTP status,
// duration, the request ID set by chi's RequestID middleware and, when the
// access gate resolved one, the acting user.
//
// Wire it after chimiddleware.RequestID so the request ID is available.
func NewSlogLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// The actor is resolved further down the chain, so it is carried
			// back through a slot placed on the context here.
			slot := &actorSlot{}
			next.ServeHTTP(ww, r.WithContext(withActorSlot(r.Context(), slot)))

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			}
			if slot.set {
				attrs = append(attrs, "actor_id", slot.actor.UserID.String())
			}

			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			log.Log(r.Context(), level, "request", attrs...)
		})
	}
}
