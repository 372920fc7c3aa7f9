// internal/domain/actor.go
package domain

import (
	"slices"

	"github.com/google/uuid"
)

// Actor is the identity resolved by the access gate in front of the engine.
// The engine never authenticates; it only checks roles on gated transitions.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles,omitempty"`
}

// Authenticated reports whether the gate resolved a user.
func (a Actor) Authenticated() bool {
	return a.UserID != uuid.Nil
}

// HasAnyRole reports whether the actor holds at least one of roles.
func (a Actor) HasAnyRole(roles []string) bool {
	for _, r := range a.Roles {
		if slices.Contains(roles, r) {
			return true
		}
	}
	return false
}
