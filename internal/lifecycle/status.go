// internal/lifecycle/status.go
package lifecycle

import (
	"time"

	"gearledger/internal/calendar"
	"gearledger/internal/domain"
)

// deriveStatus computes the status the equipment has at now. Retirement wins,
// then the open checkout, then an active maintenance window.
func deriveStatus(e domain.Equipment, cal *calendar.Calendar, now time.Time) domain.Status {
	if e.Retired() {
		return domain.StatusRetired
	}
	if co := cal.OpenCheckout(); co != nil && co.Open() {
		if co.Reserved() {
			return domain.StatusReserved
		}
		return domain.StatusCheckedOut
	}
	if cal.ActiveWindow(now) != nil {
		return domain.StatusMaintenance
	}
	return domain.StatusAvailable
}
