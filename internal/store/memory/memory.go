// Package memory is an in-process implementation of store.Store.
// It gives the same guarantees as the Postgres store: per-key serialization
// of units and all-or-nothing commits with no partial visibility. It backs
// tests and STORE_DRIVER=memory deployments.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"gearledger/internal/domain"
	"gearledger/internal/store"
)

// Store keeps every relation in maps guarded by one RWMutex. The mutex is only
// held while reading or while applying a committed unit, never while a unit's
// function runs; serialization of units is done per key by keyedMutex.
type Store struct {
	mu        sync.RWMutex
	equipment map[uuid.UUID]domain.Equipment
	checkouts map[uuid.UUID][]domain.Checkout
	windows   map[uuid.UUID][]domain.MaintenanceWindow
	events    []domain.AuditEvent

	lastEventID atomic.Int64
	keys        *keyedMutex
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		equipment: make(map[uuid.UUID]domain.Equipment),
		checkouts: make(map[uuid.UUID][]domain.Checkout),
		windows:   make(map[uuid.UUID][]domain.MaintenanceWindow),
		keys:      newKeyedMutex(),
	}
}

// Atomic runs fn with key held. Writes are staged on the unit and applied
// under the write lock after fn returns nil; a failing write undoes the ones
// before it.
func (s *Store) Atomic(ctx context.Context, key uuid.UUID, fn func(ctx context.Context, tx store.Tx) error) error {
	unlock, err := s.keys.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("memory.Store.Atomic: %w: %v", domain.ErrStoreUnavailable, err)
	}
	defer unlock()

	tx := &unit{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.Store.Atomic: %w: %v", domain.ErrStoreUnavailable, err)
	}
	return s.commit(tx.ops)
}

// op applies one staged write and returns how to undo it.
type op func(s *Store) (undo func(), err error)

func (s *Store) commit(ops []op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	undos := make([]func(), 0, len(ops))
	for _, o := range ops {
		undo, err := o(s)
		if err != nil {
			for i := len(undos) - 1; i >= 0; i-- {
				undos[i]()
			}
			return err
		}
		undos = append(undos, undo)
	}
	return nil
}

// ---- reads -------------------------------------------------------------

func (s *Store) GetEquipment(_ context.Context, id uuid.UUID) (domain.Equipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.equipment[id]
	if !ok {
		return domain.Equipment{}, fmt.Errorf("memory.Store.GetEquipment: equipment %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

func (s *Store) ListEquipment(_ context.Context, filter domain.EquipmentFilter) ([]domain.Equipment, error) {
	s.mu.RLock()
	out := make([]domain.Equipment, 0, len(s.equipment))
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	for _, e := range s.equipment {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(e.Name), q) && !strings.Contains(e.Slug, q) {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Equipment) int { return strings.Compare(a.Slug, b.Slug) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Equipment{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) OpenCheckout(_ context.Context, equipmentID uuid.UUID) (*domain.Checkout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.checkouts[equipmentID] {
		if c.Open() {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Store) ListCheckouts(_ context.Context, equipmentID uuid.UUID) ([]domain.Checkout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.checkouts[equipmentID]), nil
}

func (s *Store) ListWindows(_ context.Context, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error) {
	s.mu.RLock()
	out := slices.Clone(s.windows[equipmentID])
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.MaintenanceWindow) int { return a.StartsAt.Compare(b.StartsAt) })
	return out, nil
}

func (s *Store) AuditByEquipment(_ context.Context, equipmentID uuid.UUID) ([]domain.AuditEvent, error) {
	return s.filterEvents(func(ev domain.AuditEvent) bool {
		return ev.EquipmentID != nil && *ev.EquipmentID == equipmentID
	}), nil
}

func (s *Store) AuditByActor(_ context.Context, actorID uuid.UUID) ([]domain.AuditEvent, error) {
	return s.filterEvents(func(ev domain.AuditEvent) bool { return ev.ActorID == actorID }), nil
}

// filterEvents returns matching events ordered by identifier.
func (s *Store) filterEvents(keep func(domain.AuditEvent) bool) []domain.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.AuditEvent{}
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, cloneEvent(ev))
		}
	}
	slices.SortFunc(out, func(a, b domain.AuditEvent) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func cloneEvent(ev domain.AuditEvent) domain.AuditEvent {
	ev.Metadata = slices.Clone(ev.Metadata)
	return ev
}

// ---- unit --------------------------------------------------------------

// unit is the store.Tx handed to Atomic callbacks. Reads see committed state.
type unit struct {
	store *Store
	ops   []op
}

func (u *unit) GetEquipment(ctx context.Context, id uuid.UUID) (domain.Equipment, error) {
	return u.store.GetEquipment(ctx, id)
}

func (u *unit) ListEquipment(ctx context.Context, filter domain.EquipmentFilter) ([]domain.Equipment, error) {
	return u.store.ListEquipment(ctx, filter)
}

func (u *unit) OpenCheckout(ctx context.Context, equipmentID uuid.UUID) (*domain.Checkout, error) {
	return u.store.OpenCheckout(ctx, equipmentID)
}

func (u *unit) ListCheckouts(ctx context.Context, equipmentID uuid.UUID) ([]domain.Checkout, error) {
	return u.store.ListCheckouts(ctx, equipmentID)
}

func (u *unit) ListWindows(ctx context.Context, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error) {
	return u.store.ListWindows(ctx, equipmentID)
}

func (u *unit) AuditByEquipment(ctx context.Context, equipmentID uuid.UUID) ([]domain.AuditEvent, error) {
	return u.store.AuditByEquipment(ctx, equipmentID)
}

func (u *unit) AuditByActor(ctx context.Context, actorID uuid.UUID) ([]domain.AuditEvent, error) {
	return u.store.AuditByActor(ctx, actorID)
}

func (u *unit) HasHistory(_ context.Context, equipmentID uuid.UUID) (bool, error) {
	s := u.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.checkouts[equipmentID]) > 0 || len(s.windows[equipmentID]) > 0 {
		return true, nil
	}
	for _, ev := range s.events {
		if ev.EquipmentID != nil && *ev.EquipmentID == equipmentID && ev.Action != domain.ActionEquipmentCreated {
			return true, nil
		}
	}
	return false, nil
}

func (u *unit) InsertEquipment(_ context.Context, e domain.Equipment) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		if _, ok := s.equipment[e.ID]; ok {
			return nil, fmt.Errorf("memory.Store.InsertEquipment: id %s: %w", e.ID, domain.ErrConflict)
		}
		if s.slugTaken(e.Slug, e.ID) {
			return nil, fmt.Errorf("memory.Store.InsertEquipment: slug %q already exists: %w", e.Slug, domain.ErrConflict)
		}
		s.equipment[e.ID] = e
		return func() { delete(s.equipment, e.ID) }, nil
	})
	return nil
}

func (u *unit) UpdateEquipment(_ context.Context, e domain.Equipment) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		prev, ok := s.equipment[e.ID]
		if !ok {
			return nil, fmt.Errorf("memory.Store.UpdateEquipment: equipment %s: %w", e.ID, domain.ErrNotFound)
		}
		if s.slugTaken(e.Slug, e.ID) {
			return nil, fmt.Errorf("memory.Store.UpdateEquipment: slug %q already exists: %w", e.Slug, domain.ErrConflict)
		}
		s.equipment[e.ID] = e
		return func() { s.equipment[e.ID] = prev }, nil
	})
	return nil
}

func (u *unit) DeleteEquipment(_ context.Context, id uuid.UUID) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		prev, ok := s.equipment[id]
		if !ok {
			return nil, fmt.Errorf("memory.Store.DeleteEquipment: equipment %s: %w", id, domain.ErrNotFound)
		}
		if len(s.checkouts[id]) > 0 || len(s.windows[id]) > 0 {
			return nil, fmt.Errorf("memory.Store.DeleteEquipment: equipment %s has history: %w", id, domain.ErrConflict)
		}
		delete(s.equipment, id)
		return func() { s.equipment[id] = prev }, nil
	})
	return nil
}

func (u *unit) InsertCheckout(_ context.Context, c domain.Checkout) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		if _, ok := s.equipment[c.EquipmentID]; !ok {
			return nil, fmt.Errorf("memory.Store.InsertCheckout: equipment %s: %w", c.EquipmentID, domain.ErrNotFound)
		}
		prev := s.checkouts[c.EquipmentID]
		if c.Open() && slices.ContainsFunc(prev, domain.Checkout.Open) {
			return nil, fmt.Errorf("memory.Store.InsertCheckout: equipment %s already has an open checkout: %w", c.EquipmentID, domain.ErrConflict)
		}
		s.checkouts[c.EquipmentID] = append(slices.Clone(prev), c)
		return func() { s.checkouts[c.EquipmentID] = prev }, nil
	})
	return nil
}

func (u *unit) UpdateCheckout(_ context.Context, c domain.Checkout) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		prev := s.checkouts[c.EquipmentID]
		i := slices.IndexFunc(prev, func(x domain.Checkout) bool { return x.ID == c.ID })
		if i < 0 {
			return nil, fmt.Errorf("memory.Store.UpdateCheckout: checkout %s: %w", c.ID, domain.ErrNotFound)
		}
		next := slices.Clone(prev)
		next[i] = c
		s.checkouts[c.EquipmentID] = next
		return func() { s.checkouts[c.EquipmentID] = prev }, nil
	})
	return nil
}

func (u *unit) InsertWindow(_ context.Context, w domain.MaintenanceWindow) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		if _, ok := s.equipment[w.EquipmentID]; !ok {
			return nil, fmt.Errorf("memory.Store.InsertWindow: equipment %s: %w", w.EquipmentID, domain.ErrNotFound)
		}
		prev := s.windows[w.EquipmentID]
		for _, other := range prev {
			if w.StartsAt.Before(other.EndsAt) && other.StartsAt.Before(w.EndsAt) {
				return nil, fmt.Errorf("memory.Store.InsertWindow: overlaps window %s: %w", other.ID, domain.ErrConflict)
			}
		}
		s.windows[w.EquipmentID] = append(slices.Clone(prev), w)
		return func() { s.windows[w.EquipmentID] = prev }, nil
	})
	return nil
}

func (u *unit) UpdateWindow(_ context.Context, w domain.MaintenanceWindow) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		prev := s.windows[w.EquipmentID]
		i := slices.IndexFunc(prev, func(x domain.MaintenanceWindow) bool { return x.ID == w.ID })
		if i < 0 {
			return nil, fmt.Errorf("memory.Store.UpdateWindow: window %s: %w", w.ID, domain.ErrNotFound)
		}
		next := slices.Clone(prev)
		next[i] = w
		s.windows[w.EquipmentID] = next
		return func() { s.windows[w.EquipmentID] = prev }, nil
	})
	return nil
}

func (u *unit) DeleteWindow(_ context.Context, id uuid.UUID) error {
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		for eqID, prev := range s.windows {
			i := slices.IndexFunc(prev, func(x domain.MaintenanceWindow) bool { return x.ID == id })
			if i < 0 {
				continue
			}
			s.windows[eqID] = slices.Delete(slices.Clone(prev), i, i+1)
			return func() { s.windows[eqID] = prev }, nil
		}
		return nil, fmt.Errorf("memory.Store.DeleteWindow: window %s: %w", id, domain.ErrNotFound)
	})
	return nil
}

func (u *unit) AppendAudit(_ context.Context, ev domain.AuditEvent) (int64, error) {
	ev.ID = u.store.lastEventID.Add(1)
	ev = cloneEvent(ev)
	u.ops = append(u.ops, func(s *Store) (func(), error) {
		n := len(s.events)
		s.events = append(s.events, ev)
		return func() { s.events = s.events[:n] }, nil
	})
	return ev.ID, nil
}

// slugTaken reports whether another equipment already uses slug. Callers hold s.mu.
func (s *Store) slugTaken(slug string, self uuid.UUID) bool {
	for id, e := range s.equipment {
		if id != self && e.Slug == slug {
			return true
		}
	}
	return false
}
