// Package audit exposes the append-only audit log. Transitions append through
// their own unit's store.Tx; Log is for facts recorded outside a transition
// and for the read side.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gearledger/internal/domain"
	"gearledger/internal/store"
)

// Log appends and queries audit events. There is no update or delete.
type Log struct {
	store store.Store
	now   func() time.Time
}

// New returns a Log backed by s.
func New(s store.Store) *Log {
	return &Log{store: s, now: time.Now}
}

// Append records ev in its own atomic unit, keyed on the equipment when there
// is one so it orders with that equipment's transitions.
func (l *Log) Append(ctx context.Context, ev domain.AuditEvent) (int64, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = l.now().UTC()
	}
	key := ev.ActorID
	if ev.EquipmentID != nil {
		key = *ev.EquipmentID
	}

	var id int64
	err := l.store.Atomic(ctx, key, func(ctx context.Context, tx store.Tx) error {
		var err error
		id, err = tx.AppendAudit(ctx, ev)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("audit.Log.Append: %w", err)
	}
	return id, nil
}

// QueryByEquipment returns the equipment's events, oldest first. Events of a
// hard-deleted equipment are still returned.
func (l *Log) QueryByEquipment(ctx context.Context, equipmentID uuid.UUID) ([]domain.AuditEvent, error) {
	events, err := l.store.AuditByEquipment(ctx, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("audit.Log.QueryByEquipment: %w", err)
	}
	return events, nil
}

// QueryByActor returns every event the user caused, oldest first.
func (l *Log) QueryByActor(ctx context.Context, actorID uuid.UUID) ([]domain.AuditEvent, error) {
	events, err := l.store.AuditByActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("audit.Log.QueryByActor: %w", err)
	}
	return events, nil
}
