package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearledger/internal/domain"
	"gearledger/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, slug string) domain.Equipment {
	t.Helper()
	e := domain.Equipment{
		ID:        uuid.New(),
		Name:      "Item " + slug,
		Slug:      slug,
		Status:    domain.StatusAvailable,
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	err := s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertEquipment(ctx, e)
	})
	require.NoError(t, err)
	return e
}

func TestAtomic_commitsAllWrites(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")
	holder := uuid.New()

	err := s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		now := t0.Add(time.Minute)
		c := domain.Checkout{ID: uuid.New(), EquipmentID: e.ID, HolderID: holder, ClaimedAt: now, PickedUpAt: &now}
		require.NoError(t, tx.InsertCheckout(ctx, c))
		e.Status = domain.StatusCheckedOut
		require.NoError(t, tx.UpdateEquipment(ctx, e))
		_, err := tx.AppendAudit(ctx, domain.AuditEvent{Action: domain.ActionEquipmentCheckedOut, ActorID: holder, EquipmentID: &e.ID, OccurredAt: now})
		return err
	})
	require.NoError(t, err)

	got, err := s.GetEquipment(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCheckedOut, got.Status)

	open, err := s.OpenCheckout(context.Background(), e.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, holder, open.HolderID)

	events, err := s.AuditByActor(context.Background(), holder)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ActionEquipmentCheckedOut, events[0].Action)
}

func TestAtomic_callbackErrorDiscardsWrites(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")
	boom := errors.New("boom")

	err := s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		e.Status = domain.StatusRetired
		require.NoError(t, tx.UpdateEquipment(ctx, e))
		_, err := tx.AppendAudit(ctx, domain.AuditEvent{Action: domain.ActionEquipmentRetired, EquipmentID: &e.ID})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetEquipment(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, got.Status)

	events, err := s.AuditByEquipment(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAtomic_failedWriteUndoesEarlierOnes(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")

	err := s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		e.Status = domain.StatusCheckedOut
		require.NoError(t, tx.UpdateEquipment(ctx, e))
		_, err := tx.AppendAudit(ctx, domain.AuditEvent{Action: domain.ActionEquipmentCheckedOut, EquipmentID: &e.ID})
		require.NoError(t, err)
		// Unknown checkout, fails at commit.
		return tx.UpdateCheckout(ctx, domain.Checkout{ID: uuid.New(), EquipmentID: e.ID})
	})
	require.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.GetEquipment(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAvailable, got.Status)
	events, err := s.AuditByEquipment(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAtomic_cancelledContextRollsBack(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")
	ctx, cancel := context.WithCancel(context.Background())

	err := s.Atomic(ctx, e.ID, func(ctx context.Context, tx store.Tx) error {
		e.Name = "renamed"
		require.NoError(t, tx.UpdateEquipment(ctx, e))
		cancel()
		return nil
	})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	got, err := s.GetEquipment(context.Background(), e.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "renamed", got.Name)
}

func TestAtomic_sameKeySerializes(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, s.keys.size())
}

func TestAtomic_differentKeysRunInParallel(t *testing.T) {
	s := New()
	a := seed(t, s, "drill-a")
	b := seed(t, s, "drill-b")

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.Atomic(context.Background(), a.ID, func(ctx context.Context, tx store.Tx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := s.Atomic(ctx, b.ID, func(ctx context.Context, tx store.Tx) error { return nil })
	require.NoError(t, err, "unit on b must not wait for a")

	close(release)
	require.NoError(t, <-done)
}

func TestAtomic_lockWaitHonoursContext(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")

	release := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Atomic(ctx, e.ID, func(ctx context.Context, tx store.Tx) error { return nil })
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	close(release)
	require.Eventually(t, func() bool { return s.keys.size() == 0 }, time.Second, time.Millisecond)
}

func TestInsertEquipment_duplicateSlug(t *testing.T) {
	s := New()
	seed(t, s, "drill-1")

	dup := domain.Equipment{ID: uuid.New(), Name: "Other", Slug: "drill-1", Status: domain.StatusAvailable}
	err := s.Atomic(context.Background(), dup.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertEquipment(ctx, dup)
	})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestInsertCheckout_secondOpenCheckoutRejected(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")

	insert := func() error {
		return s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertCheckout(ctx, domain.Checkout{ID: uuid.New(), EquipmentID: e.ID, HolderID: uuid.New(), ClaimedAt: t0})
		})
	}
	require.NoError(t, insert())
	require.ErrorIs(t, insert(), domain.ErrConflict)
}

func TestInsertWindow_overlapRejected(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")

	insert := func(start, end time.Time) error {
		return s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertWindow(ctx, domain.MaintenanceWindow{ID: uuid.New(), EquipmentID: e.ID, StartsAt: start, EndsAt: end, Reason: "service"})
		})
	}
	require.NoError(t, insert(t0, t0.Add(2*time.Hour)))
	require.ErrorIs(t, insert(t0.Add(time.Hour), t0.Add(3*time.Hour)), domain.ErrConflict)
	// Touching windows do not overlap.
	require.NoError(t, insert(t0.Add(2*time.Hour), t0.Add(3*time.Hour)))

	windows, err := s.ListWindows(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.True(t, windows[0].StartsAt.Before(windows[1].StartsAt))
}

func TestDeleteWindow(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")
	w := domain.MaintenanceWindow{ID: uuid.New(), EquipmentID: e.ID, StartsAt: t0, EndsAt: t0.Add(time.Hour), Reason: "service"}
	require.NoError(t, s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertWindow(ctx, w)
	}))

	require.NoError(t, s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteWindow(ctx, w.ID)
	}))
	windows, err := s.ListWindows(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, windows)

	err = s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteWindow(ctx, w.ID)
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHasHistory(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")

	check := func() bool {
		var has bool
		require.NoError(t, s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
			var err error
			has, err = tx.HasHistory(ctx, e.ID)
			return err
		}))
		return has
	}

	require.NoError(t, s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AppendAudit(ctx, domain.AuditEvent{Action: domain.ActionEquipmentCreated, EquipmentID: &e.ID})
		return err
	}))
	assert.False(t, check())

	require.NoError(t, s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertCheckout(ctx, domain.Checkout{ID: uuid.New(), EquipmentID: e.ID, HolderID: uuid.New(), ClaimedAt: t0})
	}))
	assert.True(t, check())
}

func TestListEquipment_filterAndPaging(t *testing.T) {
	s := New()
	seed(t, s, "saw-1")
	seed(t, s, "drill-2")
	seed(t, s, "drill-1")

	all, err := s.ListEquipment(context.Background(), domain.EquipmentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"drill-1", "drill-2", "saw-1"}, []string{all[0].Slug, all[1].Slug, all[2].Slug})

	drills, err := s.ListEquipment(context.Background(), domain.EquipmentFilter{Query: "DRILL"})
	require.NoError(t, err)
	assert.Len(t, drills, 2)

	byName, err := s.ListEquipment(context.Background(), domain.EquipmentFilter{Query: "item saw"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "saw-1", byName[0].Slug)

	page, err := s.ListEquipment(context.Background(), domain.EquipmentFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "drill-2", page[0].Slug)

	past, err := s.ListEquipment(context.Background(), domain.EquipmentFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)

	none, err := s.ListEquipment(context.Background(), domain.EquipmentFilter{Status: domain.StatusRetired})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAuditMetadataIsCopied(t *testing.T) {
	s := New()
	e := seed(t, s, "drill-1")
	meta := []byte(`{"note":"ok"}`)

	require.NoError(t, s.Atomic(context.Background(), e.ID, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.AppendAudit(ctx, domain.AuditEvent{Action: domain.ActionEquipmentCreated, EquipmentID: &e.ID, Metadata: meta})
		return err
	}))
	meta[2] = 'X'

	events, err := s.AuditByEquipment(context.Background(), e.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"note":"ok"}`, string(events[0].Metadata))
}

func TestGetEquipment_notFound(t *testing.T) {
	_, err := New().GetEquipment(context.Background(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}
