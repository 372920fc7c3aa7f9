// internal/lifecycle/implementation.go
package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"gearledger/internal/calendar"
	"gearledger/internal/domain"
	"gearledger/internal/store"
)

// CreateEquipment registers a new AVAILABLE piece of equipment.
func (e *Engine) CreateEquipment(ctx context.Context, in NewEquipment, cmd Command) (domain.Equipment, error) {
	const op = "CreateEquipment"

	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	if err := e.requireElevated(cmd.Actor); err != nil {
		return domain.Equipment{}, e.reject(ctx, op, uuid.Nil, cmd.Actor, err)
	}
	if in.Name == "" {
		return domain.Equipment{}, e.reject(ctx, op, uuid.Nil, cmd.Actor, fmt.Errorf("%w: name is required", domain.ErrValidation))
	}
	if !domain.ValidSlug(in.Slug) {
		return domain.Equipment{}, e.reject(ctx, op, uuid.Nil, cmd.Actor,
			fmt.Errorf("%w: slug %q must be lowercase letters and digits separated by single dashes", domain.ErrValidation, in.Slug))
	}

	now := e.clock()
	eq := domain.Equipment{
		ID:          uuid.New(),
		Name:        in.Name,
		Description: in.Description,
		Slug:        in.Slug,
		Status:      domain.StatusAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.exec(ctx, op, eq.ID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertEquipment(ctx, eq); err != nil {
			return err
		}
		return record(ctx, tx, domain.ActionEquipmentCreated, cmd, eq.ID, nil, now)
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return eq, nil
}

// DeleteEquipment hard-deletes equipment that has never been used.
// Anything with history has to be retired instead.
func (e *Engine) DeleteEquipment(ctx context.Context, equipmentID uuid.UUID, cmd Command) error {
	const op = "DeleteEquipment"
	if err := e.requireElevated(cmd.Actor); err != nil {
		return e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	return e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetEquipment(ctx, equipmentID); err != nil {
			return err
		}
		has, err := tx.HasHistory(ctx, equipmentID)
		if err != nil {
			return err
		}
		if has {
			return fmt.Errorf("%w: equipment %s has history, retire it instead", domain.ErrConflict, equipmentID)
		}
		if err := tx.DeleteEquipment(ctx, equipmentID); err != nil {
			return err
		}
		return record(ctx, tx, domain.ActionEquipmentDeleted, cmd, equipmentID, nil, e.clock())
	})
}

// Claim opens a checkout for the actor. The equipment must be AVAILABLE right
// now and have no maintenance window from now on, since a checkout has no end.
func (e *Engine) Claim(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error) {
	const op = "Claim"
	if err := requireIdentity(cmd.Actor); err != nil {
		return domain.Equipment{}, e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	var out domain.Equipment
	err := e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		now := e.clock()
		if st := deriveStatus(snap.equipment, snap.calendar, now); st != domain.StatusAvailable {
			return fmt.Errorf("%w: equipment %s is %s", domain.ErrConflict, equipmentID, st)
		}
		if err := snap.calendar.Reserve(calendar.From(now)); err != nil {
			return err
		}

		co := domain.Checkout{
			ID:          uuid.New(),
			EquipmentID: equipmentID,
			HolderID:    cmd.Actor.UserID,
			ClaimedAt:   now,
		}
		action := domain.ActionEquipmentReserved
		if e.policy.ClaimMode == ClaimDirect {
			co.PickedUpAt = &now
			action = domain.ActionEquipmentCheckedOut
		}
		if err := tx.InsertCheckout(ctx, co); err != nil {
			return err
		}

		cal := calendar.New(equipmentID, &co, snap.calendar.Windows())
		if out, err = save(ctx, tx, snap.equipment, cal, now); err != nil {
			return err
		}
		return record(ctx, tx, action, cmd, equipmentID, &co.ID, now)
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return out, nil
}

// CheckOut starts custody of a reservation the actor holds.
func (e *Engine) CheckOut(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error) {
	const op = "CheckOut"
	if err := requireIdentity(cmd.Actor); err != nil {
		return domain.Equipment{}, e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	var out domain.Equipment
	err := e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		now := e.clock()
		co := snap.calendar.OpenCheckout()
		if snap.equipment.Retired() || co == nil || !co.Reserved() || co.HolderID != cmd.Actor.UserID {
			return fmt.Errorf("%w: equipment %s is not reserved by %s", domain.ErrConflict, equipmentID, cmd.Actor.UserID)
		}

		picked := *co
		picked.PickedUpAt = &now
		if err := tx.UpdateCheckout(ctx, picked); err != nil {
			return err
		}

		cal := calendar.New(equipmentID, &picked, snap.calendar.Windows())
		if out, err = save(ctx, tx, snap.equipment, cal, now); err != nil {
			return err
		}
		return record(ctx, tx, domain.ActionEquipmentCheckedOut, cmd, equipmentID, &picked.ID, now)
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return out, nil
}

// Release closes the open checkout. The holder can always release; whether an
// elevated actor can force release depends on the policy. Releasing a
// reservation cancels it.
func (e *Engine) Release(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error) {
	const op = "Release"
	if err := requireIdentity(cmd.Actor); err != nil {
		return domain.Equipment{}, e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	var out domain.Equipment
	err := e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		co := snap.calendar.OpenCheckout()
		if co == nil {
			return fmt.Errorf("%w: equipment %s has no open checkout", domain.ErrConflict, equipmentID)
		}
		if !e.policy.mayRelease(cmd.Actor, *co) {
			return fmt.Errorf("%w: equipment %s has no open checkout held by %s", domain.ErrConflict, equipmentID, cmd.Actor.UserID)
		}

		now := e.clock()
		closed := closeCheckout(*co, cmd.Actor.UserID, now)
		if err := tx.UpdateCheckout(ctx, closed); err != nil {
			return err
		}

		cal := calendar.New(equipmentID, nil, snap.calendar.Windows())
		if out, err = save(ctx, tx, snap.equipment, cal, now); err != nil {
			return err
		}
		return record(ctx, tx, domain.ActionEquipmentReleased, cmd, equipmentID, &closed.ID, now)
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return out, nil
}

// Retire takes equipment out of service for good. It force-closes the open
// checkout, cuts the active window short and drops future ones. Retiring
// retired equipment returns it unchanged and records nothing.
func (e *Engine) Retire(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error) {
	const op = "Retire"
	if err := e.requireElevated(cmd.Actor); err != nil {
		return domain.Equipment{}, e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	var out domain.Equipment
	err := e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		if snap.equipment.Retired() {
			out = snap.equipment
			out.Status = domain.StatusRetired
			return nil
		}

		now := e.clock()
		var subject *uuid.UUID
		if co := snap.calendar.OpenCheckout(); co != nil {
			closed := closeCheckout(*co, cmd.Actor.UserID, now)
			if err := tx.UpdateCheckout(ctx, closed); err != nil {
				return err
			}
			subject = &closed.ID
		}

		var kept []domain.MaintenanceWindow
		for _, w := range snap.calendar.Windows() {
			switch {
			case !w.Started(now):
				if err := tx.DeleteWindow(ctx, w.ID); err != nil {
					return err
				}
			case w.ActiveAt(now):
				cut, err := endWindow(ctx, tx, w, now)
				if err != nil {
					return err
				}
				if cut != nil {
					kept = append(kept, *cut)
				}
			default:
				kept = append(kept, w)
			}
		}

		retired := snap.equipment
		retired.RetiredAt = &now
		if out, err = save(ctx, tx, retired, calendar.New(equipmentID, nil, kept), now); err != nil {
			return err
		}
		return record(ctx, tx, domain.ActionEquipmentRetired, cmd, equipmentID, subject, now)
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return out, nil
}

// ScheduleMaintenance books [StartsAt, EndsAt). A window that covers now puts
// the equipment into MAINTENANCE immediately.
func (e *Engine) ScheduleMaintenance(ctx context.Context, equipmentID uuid.UUID, in NewWindow, cmd Command) (domain.MaintenanceWindow, error) {
	const op = "ScheduleMaintenance"
	if err := e.requireElevated(cmd.Actor); err != nil {
		return domain.MaintenanceWindow{}, e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}
	in.Reason = strings.TrimSpace(in.Reason)
	in.StartsAt = in.StartsAt.UTC().Truncate(time.Microsecond)
	in.EndsAt = in.EndsAt.UTC().Truncate(time.Microsecond)
	if err := validateWindow(in, e.clock()); err != nil {
		return domain.MaintenanceWindow{}, e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	var out domain.MaintenanceWindow
	err := e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		if snap.equipment.Retired() {
			return fmt.Errorf("%w: equipment %s is retired", domain.ErrConflict, equipmentID)
		}
		if err := snap.calendar.Reserve(calendar.Between(in.StartsAt, in.EndsAt)); err != nil {
			return err
		}

		now := e.clock()
		w := domain.MaintenanceWindow{
			ID:          uuid.New(),
			EquipmentID: equipmentID,
			StartsAt:    in.StartsAt,
			EndsAt:      in.EndsAt,
			Reason:      in.Reason,
			CreatedBy:   cmd.Actor.UserID,
			CreatedAt:   now,
		}
		if err := tx.InsertWindow(ctx, w); err != nil {
			return err
		}

		windows := append(slices.Clone(snap.calendar.Windows()), w)
		cal := calendar.New(equipmentID, snap.calendar.OpenCheckout(), windows)
		if _, err := save(ctx, tx, snap.equipment, cal, now); err != nil {
			return err
		}
		out = w
		return record(ctx, tx, domain.ActionMaintenanceStart, cmd, equipmentID, &w.ID, now)
	})
	if err != nil {
		return domain.MaintenanceWindow{}, err
	}
	return out, nil
}

// EndMaintenance closes the active window at now.
func (e *Engine) EndMaintenance(ctx context.Context, equipmentID uuid.UUID, cmd Command) (domain.Equipment, error) {
	const op = "EndMaintenance"
	if err := e.requireElevated(cmd.Actor); err != nil {
		return domain.Equipment{}, e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	var out domain.Equipment
	err := e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		now := e.clock()
		active := snap.calendar.ActiveWindow(now)
		if active == nil {
			return fmt.Errorf("%w: equipment %s has no active maintenance window", domain.ErrConflict, equipmentID)
		}
		windowID := active.ID

		cut, err := endWindow(ctx, tx, *active, now)
		if err != nil {
			return err
		}
		var windows []domain.MaintenanceWindow
		for _, w := range snap.calendar.Windows() {
			if w.ID != windowID {
				windows = append(windows, w)
			}
		}
		if cut != nil {
			windows = append(windows, *cut)
		}

		cal := calendar.New(equipmentID, snap.calendar.OpenCheckout(), windows)
		if out, err = save(ctx, tx, snap.equipment, cal, now); err != nil {
			return err
		}
		return record(ctx, tx, domain.ActionMaintenanceEnd, cmd, equipmentID, &windowID, now)
	})
	if err != nil {
		return domain.Equipment{}, err
	}
	return out, nil
}

// CancelMaintenance removes a window that has not started yet.
func (e *Engine) CancelMaintenance(ctx context.Context, equipmentID, windowID uuid.UUID, cmd Command) error {
	const op = "CancelMaintenance"
	if err := e.requireElevated(cmd.Actor); err != nil {
		return e.reject(ctx, op, equipmentID, cmd.Actor, err)
	}

	return e.exec(ctx, op, equipmentID, cmd.Actor, func(ctx context.Context, tx store.Tx) error {
		snap, err := load(ctx, tx, equipmentID)
		if err != nil {
			return err
		}
		now := e.clock()

		var windows []domain.MaintenanceWindow
		var target *domain.MaintenanceWindow
		for _, w := range snap.calendar.Windows() {
			if w.ID == windowID {
				target = &w
				continue
			}
			windows = append(windows, w)
		}
		if target == nil {
			return fmt.Errorf("%w: maintenance window %s on equipment %s", domain.ErrNotFound, windowID, equipmentID)
		}
		if target.Started(now) {
			return fmt.Errorf("%w: maintenance window %s has already started", domain.ErrConflict, windowID)
		}
		if err := tx.DeleteWindow(ctx, windowID); err != nil {
			return err
		}

		cal := calendar.New(equipmentID, snap.calendar.OpenCheckout(), windows)
		if _, err := save(ctx, tx, snap.equipment, cal, now); err != nil {
			return err
		}
		return record(ctx, tx, domain.ActionMaintenanceCanceled, cmd, equipmentID, &windowID, now)
	})
}

func validateWindow(in NewWindow, now time.Time) error {
	switch {
	case in.StartsAt.IsZero() || in.EndsAt.IsZero():
		return fmt.Errorf("%w: starts_at and ends_at are required", domain.ErrValidation)
	case !in.StartsAt.Before(in.EndsAt):
		return fmt.Errorf("%w: starts_at must be before ends_at", domain.ErrValidation)
	case !in.EndsAt.After(now):
		return fmt.Errorf("%w: ends_at must be in the future", domain.ErrValidation)
	case in.Reason == "":
		return fmt.Errorf("%w: reason is required", domain.ErrValidation)
	}
	return nil
}

func closeCheckout(co domain.Checkout, by uuid.UUID, now time.Time) domain.Checkout {
	co.ReturnedAt = &now
	co.ClosedBy = &by
	return co
}

// endWindow makes now the end of the active window w. A window that started
// at exactly now would become empty, so it is deleted and nil is returned.
func endWindow(ctx context.Context, tx store.Tx, w domain.MaintenanceWindow, now time.Time) (*domain.MaintenanceWindow, error) {
	if !w.StartsAt.Before(now) {
		return nil, tx.DeleteWindow(ctx, w.ID)
	}
	w.EndsAt = now
	if err := tx.UpdateWindow(ctx, w); err != nil {
		return nil, err
	}
	return &w, nil
}
