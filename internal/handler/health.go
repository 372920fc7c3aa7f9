package handler

import (
	"context"
	"net/http"
)

// Health handles GET /healthz. It answers 200 whenever the process is serving.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readiness handles GET /readyz by asking the store whether it is reachable.
func (s *Server) readiness(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				s.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
				w.Header().Set("Retry-After", retryAfterSeconds)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
