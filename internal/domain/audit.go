// internal/domain/audit.go
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action enumerates the facts recorded in the audit log.
type Action string

const (
	ActionEquipmentCreated    Action = "EQUIPMENT_CREATED"
	ActionEquipmentReserved   Action = "EQUIPMENT_RESERVED"
	ActionEquipmentCheckedOut Action = "EQUIPMENT_CHECKED_OUT"
	ActionEquipmentReleased   Action = "EQUIPMENT_RELEASED"
	ActionEquipmentRetired    Action = "EQUIPMENT_RETIRED"
	ActionEquipmentDeleted    Action = "EQUIPMENT_DELETED"
	ActionMaintenanceStart    Action = "MAINTENANCE_START"
	ActionMaintenanceEnd      Action = "MAINTENANCE_END"
	ActionMaintenanceCanceled Action = "MAINTENANCE_CANCELLED"
	ActionStatusReconciled    Action = "EQUIPMENT_STATUS_RECONCILED"
)

// AuditEvent is an immutable record of something that happened.
// EquipmentID is a weak reference: the equipment may have been hard-deleted.
// SubjectID points at the checkout or maintenance window the event concerns.
// Metadata is supplied by the caller and is stored and returned byte for byte.
type AuditEvent struct {
	ID          int64           `json:"id"`
	Action      Action          `json:"action"`
	ActorID     uuid.UUID       `json:"actor_id"`
	EquipmentID *uuid.UUID      `json:"equipment_id,omitempty"`
	SubjectID   *uuid.UUID      `json:"subject_id,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
