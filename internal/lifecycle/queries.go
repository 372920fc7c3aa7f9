// internal/lifecycle/queries.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gearledger/internal/domain"
	"gearledger/internal/store"
)

// reconcileBatch is the page size ReconcileAll walks the catalogue with.
const reconcileBatch = 100

// GetEquipment returns the equipment with its status derived at now. The
// stored status may lag behind when a window started or ended since the last
// transition; reads never write the correction.
func (e *Engine) GetEquipment(ctx context.Context, equipmentID uuid.UUID) (domain.Equipment, error) {
	snap, err := load(ctx, e.store, equipmentID)
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("lifecycle.Engine.GetEquipment: %w", err)
	}
	eq := snap.equipment
	eq.Status = deriveStatus(eq, snap.calendar, e.clock())
	return eq, nil
}

// ListEquipment pages through equipment ordered by slug, each with its status
// derived at now. A status filter is matched against the derived status, so
// rows whose stored status drifted are listed where they belong; paging then
// applies to the matching rows.
func (e *Engine) ListEquipment(ctx context.Context, filter domain.EquipmentFilter) ([]domain.Equipment, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("lifecycle.Engine.ListEquipment: %w: unknown status %q", domain.ErrValidation, filter.Status)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, fmt.Errorf("lifecycle.Engine.ListEquipment: %w: limit and offset must not be negative", domain.ErrValidation)
	}

	now := e.clock()
	if filter.Status == "" {
		items, err := e.store.ListEquipment(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("lifecycle.Engine.ListEquipment: %w", err)
		}
		out := make([]domain.Equipment, 0, len(items))
		for _, item := range items {
			eq, ok, err := e.derived(ctx, item.ID, now)
			if err != nil {
				return nil, fmt.Errorf("lifecycle.Engine.ListEquipment: %w", err)
			}
			if ok {
				out = append(out, eq)
			}
		}
		return out, nil
	}

	// The stored column may lag, so walk every row matching the query.
	scan := domain.EquipmentFilter{Query: filter.Query, Limit: reconcileBatch}
	skip := filter.Offset
	out := []domain.Equipment{}
	for {
		page, err := e.store.ListEquipment(ctx, scan)
		if err != nil {
			return nil, fmt.Errorf("lifecycle.Engine.ListEquipment: %w", err)
		}
		for _, item := range page {
			eq, ok, err := e.derived(ctx, item.ID, now)
			if err != nil {
				return nil, fmt.Errorf("lifecycle.Engine.ListEquipment: %w", err)
			}
			if !ok || eq.Status != filter.Status {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			out = append(out, eq)
			if filter.Limit > 0 && len(out) == filter.Limit {
				return out, nil
			}
		}
		if len(page) < reconcileBatch {
			return out, nil
		}
		scan.Offset += len(page)
	}
}

// derived loads the equipment with its status derived at now. ok is false when
// it was deleted since it was listed.
func (e *Engine) derived(ctx context.Context, id uuid.UUID, now time.Time) (domain.Equipment, bool, error) {
	snap, err := load(ctx, e.store, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Equipment{}, false, nil
	}
	if err != nil {
		return domain.Equipment{}, false, err
	}
	eq := snap.equipment
	eq.Status = deriveStatus(eq, snap.calendar, now)
	return eq, true, nil
}

// GetHistory returns the audit trail of the equipment, oldest first. The trail
// of hard-deleted equipment is still served.
func (e *Engine) GetHistory(ctx context.Context, equipmentID uuid.UUID) ([]domain.AuditEvent, error) {
	events, err := e.audit.QueryByEquipment(ctx, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Engine.GetHistory: %w", err)
	}
	if len(events) == 0 {
		if _, err := e.store.GetEquipment(ctx, equipmentID); err != nil {
			return nil, fmt.Errorf("lifecycle.Engine.GetHistory: %w", err)
		}
	}
	return events, nil
}

func (e *Engine) ListCheckouts(ctx context.Context, equipmentID uuid.UUID) ([]domain.Checkout, error) {
	if _, err := e.store.GetEquipment(ctx, equipmentID); err != nil {
		return nil, fmt.Errorf("lifecycle.Engine.ListCheckouts: %w", err)
	}
	out, err := e.store.ListCheckouts(ctx, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Engine.ListCheckouts: %w", err)
	}
	return out, nil
}

func (e *Engine) ListMaintenance(ctx context.Context, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error) {
	if _, err := e.store.GetEquipment(ctx, equipmentID); err != nil {
		return nil, fmt.Errorf("lifecycle.Engine.ListMaintenance: %w", err)
	}
	out, err := e.store.ListWindows(ctx, equipmentID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Engine.ListMaintenance: %w", err)
	}
	return out, nil
}

// ActorHistory returns every event the user caused, oldest first.
func (e *Engine) ActorHistory(ctx context.Context, userID uuid.UUID) ([]domain.AuditEvent, error) {
	out, err := e.audit.QueryByActor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle.Engine.ActorHistory: %w", err)
	}
	return out, nil
}

// Reconcile rewrites the stored status when it no longer matches the derived
// one, for instance after a scheduled window started. It records
// EQUIPMENT_STATUS_RECONCILED only when something changed.
func (e *Engine) Reconcile(ctx context.Context, equipmentID uuid.UUID) (domain.Equipment, error) {
	eq, _, err := e.reconcile(ctx, equipmentID)
	return eq, err
}

func (e *Engine) reconcile(ctx context.Context, equipmentID uuid.UUID) (domain.Equipment, bool, error) {
	var (
		out     domain.Equipment
		changed bool
	)
	cmd := Command{Actor: SystemActor}
	err := e.exec(ctx, "Reconcile", equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		now := e.clock()
		if deriveStatus(snap.equipment, snap.calendar, now) == snap.equipment.Status {
			out = snap.equipment
			return nil
		}
		if out, err = save(ctx, tx, snap.equipment, snap.calendar, now); err != nil {
			return err
		}
		changed = true
		return record(ctx, tx, domain.ActionStatusReconciled, cmd, equipmentID, nil, now)
	})
	if err != nil {
		return domain.Equipment{}, false, err
	}
	return out, changed, nil
}

// ReconcileAll reconciles every non-retired equipment and returns how many
// were corrected. It keeps going past individual failures and returns them
// joined.
func (e *Engine) ReconcileAll(ctx context.Context) (int, error) {
	var (
		fixed int
		errs  []error
	)
	for offset := 0; ; offset += reconcileBatch {
		page, err := e.store.ListEquipment(ctx, domain.EquipmentFilter{Limit: reconcileBatch, Offset: offset})
		if err != nil {
			errs = append(errs, err)
			break
		}
		for _, eq := range page {
			if eq.Retired() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return fixed, fmt.Errorf("lifecycle.Engine.ReconcileAll: %w", errors.Join(append(errs, err)...))
			}
			_, changed, err := e.reconcile(ctx, eq.ID)
			switch {
			case errors.Is(err, domain.ErrNotFound):
			case err != nil:
				errs = append(errs, err)
			case changed:
				fixed++
			}
		}
		if len(page) < reconcileBatch {
			break
		}
	}

	if len(errs) > 0 {
		return fixed, fmt.Errorf("lifecycle.Engine.ReconcileAll: %w", errors.Join(errs...))
	}
	e.logger.Debug("reconcile pass finished", "fixed", fixed)
	return fixed, nil
}
