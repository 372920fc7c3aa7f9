package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

const windowColumns = `id, equipment_id, starts_at, ends_at, reason, created_by, created_at`

func scanWindow(row scanner) (domain.MaintenanceWindow, error) {
	var w domain.MaintenanceWindow
	err := row.Scan(&w.ID, &w.EquipmentID, &w.StartsAt, &w.EndsAt, &w.Reason, &w.CreatedBy, &w.CreatedAt)
	return w, err
}

func (r queries) ListWindows(ctx context.Context, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error) {
	const q = `SELECT ` + windowColumns + ` FROM maintenance_windows WHERE equipment_id = $1 ORDER BY starts_at`

	rows, err := r.q.QueryContext(ctx, q, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.ListWindows: %w", classify(err))
	}
	defer rows.Close()

	out := []domain.MaintenanceWindow{}
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.Store.ListWindows: scan: %w", classify(err))
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.Store.ListWindows: %w", classify(err))
	}
	return out, nil
}

func (t *pgTx) InsertWindow(ctx context.Context, w domain.MaintenanceWindow) error {
	const q = `INSERT INTO maintenance_windows (` + windowColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.q.ExecContext(ctx, q, w.ID, w.EquipmentID, w.StartsAt, w.EndsAt, w.Reason, w.CreatedBy, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres.Store.InsertWindow: %w", classify(err))
	}
	return nil
}

// UpdateWindow only moves the bounds; used to cut an active window short.
func (t *pgTx) UpdateWindow(ctx context.Context, w domain.MaintenanceWindow) error {
	const q = `UPDATE maintenance_windows SET starts_at = $2, ends_at = $3 WHERE id = $1`

	res, err := t.q.ExecContext(ctx, q, w.ID, w.StartsAt, w.EndsAt)
	if err != nil {
		return fmt.Errorf("postgres.Store.UpdateWindow: %w", classify(err))
	}
	if err := affectedOne(res, "maintenance window", w.ID); err != nil {
		return fmt.Errorf("postgres.Store.UpdateWindow: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteWindow(ctx context.Context, id uuid.UUID) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM maintenance_windows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres.Store.DeleteWindow: %w", classify(err))
	}
	if err := affectedOne(res, "maintenance window", id); err != nil {
		return fmt.Errorf("postgres.Store.DeleteWindow: %w", err)
	}
	return nil
}
