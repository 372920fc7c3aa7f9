// Package calendar answers scheduling questions for one piece of equipment:
// does a candidate interval collide with a maintenance window or with the
// open-ended interval of an active checkout.
//
// A Calendar is a snapshot. Load it inside the same atomic unit as the write
// that depends on its answer, otherwise the check and the act can race.
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

// Interval is the half-open range [Start, End). A zero End means +∞.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Between returns the bounded interval [start, end).
func Between(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// From returns the unbounded interval [start, +∞).
func From(start time.Time) Interval {
	return Interval{Start: start}
}

// Unbounded reports whether the interval extends to +∞.
func (i Interval) Unbounded() bool {
	return i.End.IsZero()
}

// Overlaps reports whether i and o share at least one instant:
// [a1,a2) and [b1,b2) overlap iff a1 < b2 && b1 < a2.
func (i Interval) Overlaps(o Interval) bool {
	return before(i.Start, o.End) && before(o.Start, i.End)
}

// before reports t < end, treating a zero end as +∞.
func before(t, end time.Time) bool {
	if end.IsZero() {
		return true
	}
	return t.Before(end)
}

// Kind says what kind of commitment holds an interval.
type Kind string

const (
	KindMaintenance Kind = "maintenance"
	KindCheckout    Kind = "checkout"
)

// Commitment is an interval already promised to something.
type Commitment struct {
	Kind     Kind
	ID       uuid.UUID
	Interval Interval
}

func (c Commitment) String() string {
	if c.Interval.Unbounded() {
		return fmt.Sprintf("%s %s from %s", c.Kind, c.ID, c.Interval.Start.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s %s [%s, %s)", c.Kind, c.ID,
		c.Interval.Start.Format(time.RFC3339), c.Interval.End.Format(time.RFC3339))
}

// Source is the read side of a store unit that a Calendar is built from.
type Source interface {
	OpenCheckout(ctx context.Context, equipmentID uuid.UUID) (*domain.Checkout, error)
	ListWindows(ctx context.Context, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error)
}

// Calendar is the set of commitments on one piece of equipment.
type Calendar struct {
	equipmentID uuid.UUID
	checkout    *domain.Checkout
	windows     []domain.MaintenanceWindow
}

// Load reads the open checkout and every maintenance window of equipmentID.
func Load(ctx context.Context, src Source, equipmentID uuid.UUID) (*Calendar, error) {
	co, err := src.OpenCheckout(ctx, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("calendar.Load: open checkout: %w", err)
	}
	windows, err := src.ListWindows(ctx, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("calendar.Load: windows: %w", err)
	}
	return New(equipmentID, co, windows), nil
}

// New builds a Calendar from already-loaded state.
func New(equipmentID uuid.UUID, open *domain.Checkout, windows []domain.MaintenanceWindow) *Calendar {
	return &Calendar{equipmentID: equipmentID, checkout: open, windows: windows}
}

// OpenCheckout returns the open checkout, or nil.
func (c *Calendar) OpenCheckout() *domain.Checkout {
	return c.checkout
}

// Windows returns every window, past and future.
func (c *Calendar) Windows() []domain.MaintenanceWindow {
	return c.windows
}

// Commitments lists every interval currently promised, checkout first.
func (c *Calendar) Commitments() []Commitment {
	out := make([]Commitment, 0, len(c.windows)+1)
	if c.checkout != nil && c.checkout.Open() {
		out = append(out, Commitment{Kind: KindCheckout, ID: c.checkout.ID, Interval: From(c.checkout.ClaimedAt)})
	}
	for _, w := range c.windows {
		out = append(out, Commitment{Kind: KindMaintenance, ID: w.ID, Interval: Between(w.StartsAt, w.EndsAt)})
	}
	return out
}

// Conflicts returns every commitment overlapping candidate, skipping the
// commitment with id ignore (uuid.Nil ignores nothing).
func (c *Calendar) Conflicts(candidate Interval, ignore uuid.UUID) []Commitment {
	var out []Commitment
	for _, cm := range c.Commitments() {
		if ignore != uuid.Nil && cm.ID == ignore {
			continue
		}
		if cm.Interval.Overlaps(candidate) {
			out = append(out, cm)
		}
	}
	return out
}

// Reserve returns a domain.ErrConflict naming the first collision when candidate
// overlaps any commitment, or nil when the interval is free.
func (c *Calendar) Reserve(candidate Interval) error {
	conflicts := c.Conflicts(candidate, uuid.Nil)
	if len(conflicts) == 0 {
		return nil
	}
	return fmt.Errorf("%w: equipment %s is committed to %s", domain.ErrConflict, c.equipmentID, conflicts[0])
}

// ActiveWindow returns the maintenance window covering t, or nil.
func (c *Calendar) ActiveWindow(t time.Time) *domain.MaintenanceWindow {
	for i := range c.windows {
		if c.windows[i].ActiveAt(t) {
			return &c.windows[i]
		}
	}
	return nil
}

// UpcomingWindows returns the windows that start after t.
func (c *Calendar) UpcomingWindows(t time.Time) []domain.MaintenanceWindow {
	var out []domain.MaintenanceWindow
	for _, w := range c.windows {
		if w.StartsAt.After(t) {
			out = append(out, w)
		}
	}
	return out
}
