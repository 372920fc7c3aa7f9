// internal/lifecycle/service.go
package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

// Service is the equipment lifecycle and reservation engine.
type Service interface {
	CreateEquipment(ctx context.Context, in NewEquipment, cmd Command) (domain.Equipment, error)
	DeleteEquipment(ctx context.Context, equipmentID uuid.UUID, cmd Command) error

	Claim(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error)
	CheckOut(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error)
	Release(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error)
	Retire(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error)

	ScheduleMaintenance(ctx context.Context, equipmentID uuid.UUID, in NewWindow, cmd Command) (domain.MaintenanceWindow, error)
	EndMaintenance(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error)
	CancelMaintenance(ctx context.Context, equipmentID, windowID uuid.UUID, cmd Command) error

	Reconcile(ctx context.Context, equipmentID uuid.UUID) (domain.Equipment, error)
	ReconcileAll(ctx context.Context) (int, error)

	GetEquipment(ctx context.Context, equipmentID uuid.UUID) (domain.Equipment, error)
	ListEquipment(ctx context.Context, filter domain.EquipmentFilter) ([]domain.Equipment, error)
	GetHistory(ctx context.Context, equipmentID uuid.UUID) ([]domain.AuditEvent, error)
	ListCheckouts(ctx context.Context, equipmentID uuid.UUID) ([]domain.Checkout, error)
	ListMaintenance(ctx context.Context, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error)
	ActorHistory(ctx context.Context, userID uuid.UUID) ([]domain.AuditEvent, error)
}

// Command carries who is asking and the metadata to store on the audit event.
// Metadata is never interpreted.
type Command struct {
	Actor    domain.Actor
	Metadata json.RawMessage
}

// NewEquipment is the input of CreateEquipment.
type NewEquipment struct {
	Name        string
	Description string
	Slug        string
}

// NewWindow is the input of ScheduleMaintenance.
type NewWindow struct {
	StartsAt time.Time
	EndsAt   time.Time
	Reason   string
}

// SystemActor is recorded on events the engine produces on its own, such as
// status reconciliation.
var SystemActor = domain.Actor{UserID: uuid.Nil, Roles: []string{"system"}}
