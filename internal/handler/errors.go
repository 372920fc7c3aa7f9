package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"gearledger/internal/domain"
)

// retryAfterSeconds is sent with every 503. Nothing was applied, so the
// caller may repeat the whole request.
const retryAfterSeconds = "1"

// ErrorDetail is the body of every error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorDetail so clients can tell errors from data.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// sentinels maps each domain sentinel onto its status and error code, in the
// order they are tested.
var sentinels = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrValidation, http.StatusUnprocessableEntity, "validation_error"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// writeEngineError maps err onto a response. Unknown errors become 500 and
// are logged; their text never reaches the client.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range sentinels {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := unwrapMessage(err, m.err)
		if m.status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", retryAfterSeconds)
			msg = "storage is temporarily unavailable, retry the request"
		}
		writeError(w, m.status, m.code, msg)
		return
	}

	s.logger.ErrorContext(r.Context(), "unhandled engine error", "error", err, "path", r.URL.Path)
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

// unwrapMessage returns the detail that follows the sentinel's text.
// e.g. "lifecycle.Engine.Claim: conflict: equipment x is CHECKED_OUT" → "equipment x is CHECKED_OUT"
func unwrapMessage(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return sentinel.Error()
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func writeValidation(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnprocessableEntity, "validation_error", message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
