// Package domain contains the core types of the equipment lifecycle engine.
// It depends on nothing but uuid and is imported by every other internal package.
package domain

import "errors"

// ErrNotFound is returned when an equipment, checkout or window identifier is unknown.
// It is terminal for the request. Handlers map it to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a transition is not allowed by the current state
// or the reservation calendar. Callers may re-read and retry; the engine never does.
// Handlers map it to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrValidation is returned for malformed input such as an empty interval.
// Handlers map it to HTTP 422.
var ErrValidation = errors.New("validation error")

// ErrForbidden is returned when the actor is missing or lacks the role a
// transition requires. Handlers map it to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrStoreUnavailable is returned when the atomic unit failed for infrastructure
// reasons. Nothing was applied, so retrying the whole operation is safe.
// Handlers map it to HTTP 503.
var ErrStoreUnavailable = errors.New("store unavailable")
