// Package store defines the transactional persistence contract the lifecycle
// engine runs on. Implementations live in the memory and postgres subpackages.
package store

import (
	"context"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

// Reader is the read side shared by a Store and the units it runs.
type Reader interface {
	// GetEquipment returns domain.ErrNotFound when id is unknown.
	GetEquipment(ctx context.Context, id uuid.UUID) (domain.Equipment, error)

	// ListEquipment returns equipment ordered by slug. The Status field of the
	// filter is matched against the stored status column.
	ListEquipment(ctx context.Context, filter domain.EquipmentFilter) ([]domain.Equipment, error)

	// OpenCheckout returns the open checkout of the equipment, or nil when none is open.
	OpenCheckout(ctx context.Context, equipmentID uuid.UUID) (*domain.Checkout, error)

	// ListCheckouts returns every checkout of the equipment ordered by claim time.
	ListCheckouts(ctx context.Context, equipmentID uuid.UUID) ([]domain.Checkout, error)

	// ListWindows returns every maintenance window of the equipment ordered by start.
	ListWindows(ctx context.Context, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error)

	// AuditByEquipment returns the events of the equipment, oldest first.
	AuditByEquipment(ctx context.Context, equipmentID uuid.UUID) ([]domain.AuditEvent, error)

	// AuditByActor returns the events recorded for an actor, oldest first.
	AuditByActor(ctx context.Context, actorID uuid.UUID) ([]domain.AuditEvent, error)
}

// Tx is one atomic unit of work. Writes become visible to other units only
// when the unit commits, and all of them or none of them do. Reads inside a
// unit are not required to observe the unit's own pending writes.
type Tx interface {
	Reader

	// HasHistory reports whether the equipment has checkouts, maintenance
	// windows, or audit events other than its creation.
	HasHistory(ctx context.Context, equipmentID uuid.UUID) (bool, error)

	InsertEquipment(ctx context.Context, e domain.Equipment) error
	UpdateEquipment(ctx context.Context, e domain.Equipment) error
	DeleteEquipment(ctx context.Context, id uuid.UUID) error

	InsertCheckout(ctx context.Context, c domain.Checkout) error
	UpdateCheckout(ctx context.Context, c domain.Checkout) error

	InsertWindow(ctx context.Context, w domain.MaintenanceWindow) error
	UpdateWindow(ctx context.Context, w domain.MaintenanceWindow) error
	DeleteWindow(ctx context.Context, id uuid.UUID) error

	// AppendAudit records ev and returns its identifier. Identifiers increase
	// in commit order for any single equipment.
	AppendAudit(ctx context.Context, ev domain.AuditEvent) (int64, error)
}

// Store runs atomic units and serves committed reads.
type Store interface {
	Reader

	// Atomic runs fn as one all-or-nothing unit. Units sharing key are
	// serialized; units with different keys run in parallel. If fn returns an
	// error nothing it wrote is kept and the error is returned as is.
	// Infrastructure failures are reported as domain.ErrStoreUnavailable.
	Atomic(ctx context.Context, key uuid.UUID, fn func(ctx context.Context, tx Tx) error) error
}
