// internal/domain/maintenance.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaintenanceWindow is a scheduled range [StartsAt, EndsAt) during which the
// equipment cannot be claimed.
type MaintenanceWindow struct {
	ID          uuid.UUID `json:"id"`
	EquipmentID uuid.UUID `json:"equipment_id"`
	StartsAt    time.Time `json:"starts_at"`
	EndsAt      time.Time `json:"ends_at"`
	Reason      string    `json:"reason"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ActiveAt reports whether t falls inside the window.
func (w MaintenanceWindow) ActiveAt(t time.Time) bool {
	return !t.Before(w.StartsAt) && t.Before(w.EndsAt)
}

// Started reports whether the window has begun at t. Started windows are history
// and can no longer be cancelled.
func (w MaintenanceWindow) Started(t time.Time) bool {
	return !t.Before(w.StartsAt)
}
