package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"gearledger/internal/domain"
)

const checkoutColumns = `id, equipment_id, holder_id, claimed_at, picked_up_at, returned_at, closed_by`

func scanCheckout(row scanner) (domain.Checkout, error) {
	var (
		c                    domain.Checkout
		pickedUp, returnedAt sql.NullTime
		closedBy             uuid.NullUUID
	)
	if err := row.Scan(&c.ID, &c.EquipmentID, &c.HolderID, &c.ClaimedAt, &pickedUp, &returnedAt, &closedBy); err != nil {
		return domain.Checkout{}, err
	}
	if pickedUp.Valid {
		t := pickedUp.Time
		c.PickedUpAt = &t
	}
	if returnedAt.Valid {
		t := returnedAt.Time
		c.ReturnedAt = &t
	}
	if closedBy.Valid {
		id := closedBy.UUID
		c.ClosedBy = &id
	}
	return c, nil
}

func (r queries) OpenCheckout(ctx context.Context, equipmentID uuid.UUID) (*domain.Checkout, error) {
	const q = `SELECT ` + checkoutColumns + ` FROM checkouts WHERE equipment_id = $1 AND returned_at IS NULL`

	c, err := scanCheckout(r.q.QueryRowContext(ctx, q, equipmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.OpenCheckout: %w", classify(err))
	}
	return &c, nil
}

func (r queries) ListCheckouts(ctx context.Context, equipmentID uuid.UUID) ([]domain.Checkout, error) {
	const q = `SELECT ` + checkoutColumns + ` FROM checkouts WHERE equipment_id = $1 ORDER BY claimed_at, id`

	rows, err := r.q.QueryContext(ctx, q, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("postgres.Store.ListCheckouts: %w", classify(err))
	}
	defer rows.Close()

	out := []domain.Checkout{}
	for rows.Next() {
		c, err := scanCheckout(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres.Store.ListCheckouts: scan: %w", classify(err))
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.Store.ListCheckouts: %w", classify(err))
	}
	return out, nil
}

func (t *pgTx) InsertCheckout(ctx context.Context, c domain.Checkout) error {
	const q = `INSERT INTO checkouts (` + checkoutColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := t.q.ExecContext(ctx, q, c.ID, c.EquipmentID, c.HolderID, c.ClaimedAt, c.PickedUpAt, c.ReturnedAt, c.ClosedBy)
	if err != nil {
		return fmt.Errorf("postgres.Store.InsertCheckout: %w", classify(err))
	}
	return nil
}

// UpdateCheckout writes the mutable columns. Holder and claim time are fixed
// at insert.
func (t *pgTx) UpdateCheckout(ctx context.Context, c domain.Checkout) error {
	const q = `UPDATE checkouts SET picked_up_at = $2, returned_at = $3, closed_by = $4 WHERE id = $1`

	res, err := t.q.ExecContext(ctx, q, c.ID, c.PickedUpAt, c.ReturnedAt, c.ClosedBy)
	if err != nil {
		return fmt.Errorf("postgres.Store.UpdateCheckout: %w", classify(err))
	}
	if err := affectedOne(res, "checkout", c.ID); err != nil {
		return fmt.Errorf("postgres.Store.UpdateCheckout: %w", err)
	}
	return nil
}
