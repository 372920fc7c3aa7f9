// internal/domain/equipment.go
package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Status is the cached lifecycle state of a piece of equipment.
type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusReserved    Status = "RESERVED"
	StatusCheckedOut  Status = "CHECKED_OUT"
	StatusMaintenance Status = "MAINTENANCE"
	StatusRetired     Status = "RETIRED"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusReserved, StatusCheckedOut, StatusMaintenance, StatusRetired:
		return true
	}
	return false
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether s is lowercase letters and digits separated by
// single dashes.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

// Equipment represents one physical item that can be claimed.
// Status is a projection of the open checkout, the maintenance windows and
// RetiredAt; it is rewritten only by lifecycle transitions.
type Equipment struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Slug        string     `json:"slug"`
	Status      Status     `json:"status"`
	RetiredAt   *time.Time `json:"retired_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Retired reports whether the equipment has reached the terminal state.
func (e Equipment) Retired() bool {
	return e.RetiredAt != nil
}

// EquipmentFilter narrows ListEquipment results.
// A zero Status matches every status. Query matches name or slug, case-insensitively.
type EquipmentFilter struct {
	Status Status
	Query  string
	Limit  int
	Offset int
}
