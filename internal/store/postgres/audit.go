package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

const auditColumns = `id, action, actor_id, equipment_id, subject_id, metadata, occurred_at`

func scanEvent(row scanner) (domain.AuditEvent, error) {
	var (
		ev                   domain.AuditEvent
		equipmentID, subject uuid.NullUUID
		metadata             []byte
	)
	if err := row.Scan(&ev.ID, &ev.Action, &ev.ActorID, &equipmentID, &subject, &metadata, &ev.OccurredAt); err != nil {
		return domain.AuditEvent{}, err
	}
	if equipmentID.Valid {
		id := equipmentID.UUID
		ev.EquipmentID = &id
	}
	if subject.Valid {
		id := subject.UUID
		ev.SubjectID = &id
	}
	ev.Metadata = metadata
	return ev, nil
}

func (r queries) AuditByEquipment(ctx context.Context, equipmentID uuid.UUID) ([]domain.AuditEvent, error) {
	return r.queryEvents(ctx, "AuditByEquipment",
		`SELECT `+auditColumns+` FROM audit_events WHERE equipment_id = $1 ORDER BY id`, equipmentID)
}

func (r queries) AuditByActor(ctx context.Context, actorID uuid.UUID) ([]domain.AuditEvent, error) {
	return r.queryEvents(ctx, "AuditByActor",
		`SELECT `+auditColumns+` FROM audit_events WHERE actor_id = $1 ORDER BY id`, actorID)
}

func (r queries) queryEvents(ctx context.Context, op, q string, arg uuid.UUID) ([]domain.AuditEvent, error) {
	rows, err := r.q.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.%s: %w", op, classify(err))
	}
	defer rows.Close()

	out := []domain.AuditEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.Store.%s: scan: %w", op, classify(err))
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.Store.%s: %w", op, classify(err))
	}
	return out, nil
}

// AppendAudit inserts ev. The id comes from the sequence; the equipment row
// lock held by the unit keeps ids in commit order per equipment.
func (t *pgTx) AppendAudit(ctx context.Context, ev domain.AuditEvent) (int64, error) {
	const q = `
		INSERT INTO audit_events (action, actor_id, equipment_id, subject_id, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var metadata any
	if len(ev.Metadata) > 0 {
		metadata = string(ev.Metadata)
	}

	var id int64
	err := t.q.QueryRowContext(ctx, q, string(ev.Action), ev.ActorID, ev.EquipmentID, ev.SubjectID, metadata, ev.OccurredAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres.Store.AppendAudit: %w", classify(err))
	}
	return id, nil
}
