package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

const equipmentColumns = `id, name, description, slug, status, retired_at, created_at, updated_at`

func scanEquipment(row scanner) (domain.Equipment, error) {
	var (
		e         domain.Equipment
		retiredAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Slug, &e.Status, &retiredAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return domain.Equipment{}, err
	}
	if retiredAt.Valid {
		t := retiredAt.Time
		e.RetiredAt = &t
	}
	return e, nil
}

func (r queries) GetEquipment(ctx context.Context, id uuid.UUID) (domain.Equipment, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+equipmentColumns+` FROM equipment WHERE id = $1`, id)
	e, err := scanEquipment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Equipment{}, fmt.Errorf("postgres.Store.GetEquipment: equipment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("postgres.Store.GetEquipment: %w", classify(err))
	}
	return e, nil
}

func (r queries) ListEquipment(ctx context.Context, filter domain.EquipmentFilter) ([]domain.Equipment, error) {
	const q = `
		SELECT ` + equipmentColumns + `
		FROM equipment
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR strpos(lower(name), lower($2)) > 0 OR strpos(slug, lower($2)) > 0)
		ORDER BY slug
		LIMIT $3 OFFSET $4`

	limit := sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0}
	rows, err := r.q.QueryContext(ctx, q, string(filter.Status), filter.Query, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.ListEquipment: %w", classify(err))
	}
	defer rows.Close()

	out := []domain.Equipment{}
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.Store.ListEquipment: scan: %w", classify(err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.Store.ListEquipment: %w", classify(err))
	}
	return out, nil
}

func (t *pgTx) HasHistory(ctx context.Context, equipmentID uuid.UUID) (bool, error) {
	const q = `
		SELECT EXISTS (SELECT 1 FROM checkouts WHERE equipment_id = $1)
		    OR EXISTS (SELECT 1 FROM maintenance_windows WHERE equipment_id = $1)
		    OR EXISTS (SELECT 1 FROM audit_events WHERE equipment_id = $1 AND action <> $2)`

	var has bool
	if err := t.q.QueryRowContext(ctx, q, equipmentID, string(domain.ActionEquipmentCreated)).Scan(&has); err != nil {
		return false, fmt.Errorf("postgres.Store.HasHistory: %w", classify(err))
	}
	return has, nil
}

func (t *pgTx) InsertEquipment(ctx context.Context, e domain.Equipment) error {
	const q = `
		INSERT INTO equipment (` + equipmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := t.q.ExecContext(ctx, q, e.ID, e.Name, e.Description, e.Slug, string(e.Status), e.RetiredAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres.Store.InsertEquipment: %w", classify(err))
	}
	return nil
}

func (t *pgTx) UpdateEquipment(ctx context.Context, e domain.Equipment) error {
	const q = `
		UPDATE equipment
		SET name = $2, description = $3, slug = $4, status = $5, retired_at = $6, updated_at = $7
		WHERE id = $1`

	res, err := t.q.ExecContext(ctx, q, e.ID, e.Name, e.Description, e.Slug, string(e.Status), e.RetiredAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres.Store.UpdateEquipment: %w", classify(err))
	}
	if err := affectedOne(res, "equipment", e.ID); err != nil {
		return fmt.Errorf("postgres.Store.UpdateEquipment: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteEquipment(ctx context.Context, id uuid.UUID) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM equipment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres.Store.DeleteEquipment: %w", classify(err))
	}
	if err := affectedOne(res, "equipment", id); err != nil {
		return fmt.Errorf("postgres.Store.DeleteEquipment: %w", err)
	}
	return nil
}
