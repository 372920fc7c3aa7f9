// internal/domain/checkout.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Checkout is one holder's claim on one piece of equipment.
// PickedUpAt is nil while the claim is only a reservation; ReturnedAt is nil
// while the checkout is open.
type Checkout struct {
	ID          uuid.UUID  `json:"id"`
	EquipmentID uuid.UUID  `json:"equipment_id"`
	HolderID    uuid.UUID  `json:"holder_id"`
	ClaimedAt   time.Time  `json:"claimed_at"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	ClosedBy    *uuid.UUID `json:"closed_by,omitempty"`
}

// Open reports whether the checkout has not been returned yet.
func (c Checkout) Open() bool {
	return c.ReturnedAt == nil
}

// Reserved reports whether the checkout is open but custody has not started.
func (c Checkout) Reserved() bool {
	return c.Open() && c.PickedUpAt == nil
}
