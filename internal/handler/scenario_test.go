package handler_test

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearledger/internal/domain"
	"gearledger/internal/handler"
	"gearledger/internal/lifecycle"
	"gearledger/internal/store/memory"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// The full claim / maintenance cycle driven through the HTTP surface against
// the in-memory store.
func TestScenario_claimReleaseMaintenance(t *testing.T) {
	now := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	clock := &testClock{t: now}
	eng, err := lifecycle.NewEngine(memory.New(), lifecycle.DefaultPolicy(),
		lifecycle.WithClock(clock.Now), lifecycle.WithLogger(discardLogger()))
	require.NoError(t, err)
	h := newHTTPHandler(eng)

	rec := do(t, h, &boss, http.MethodPost, "/equipment", map[string]any{"name": "Tripod", "slug": "tripod-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	eq := decodeBody[domain.Equipment](t, rec)
	base := "/equipment/" + eq.ID.String()

	rec = do(t, h, &alice, http.MethodPost, base+"/claim", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusCheckedOut, decodeBody[domain.Equipment](t, rec).Status)

	rec = do(t, h, &bob, http.MethodPost, base+"/claim", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, &alice, http.MethodPost, base+"/release", map[string]any{"metadata": map[string]string{"condition": "ok"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, &boss, http.MethodPost, base+"/maintenance", map[string]any{
		"starts_at": now.Add(time.Hour),
		"ends_at":   now.Add(3 * time.Hour),
		"reason":    "leg lock repair",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	clock.Set(now.Add(90 * time.Minute))
	rec = do(t, h, &bob, http.MethodPost, base+"/claim", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, &alice, http.MethodPost, base+"/maintenance/end", nil)
	require.Equal(t, http.StatusForbidden, rec.Code, "ending maintenance needs an elevated role")

	rec = do(t, h, &boss, http.MethodPost, base+"/maintenance/end", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusAvailable, decodeBody[domain.Equipment](t, rec).Status)

	rec = do(t, h, &alice, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeBody[handler.ListResponse[domain.AuditEvent]](t, rec).Data
	actions := make([]domain.Action, len(events))
	for i, ev := range events {
		actions[i] = ev.Action
	}
	assert.Equal(t, []domain.Action{
		domain.ActionEquipmentCreated,
		domain.ActionEquipmentCheckedOut,
		domain.ActionEquipmentReleased,
		domain.ActionMaintenanceStart,
		domain.ActionMaintenanceEnd,
	}, actions)
	assert.JSONEq(t, `{"condition":"ok"}`, string(events[2].Metadata))

	rec = do(t, h, &alice, http.MethodGet, base+"/checkouts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	checkouts := decodeBody[handler.ListResponse[domain.Checkout]](t, rec).Data
	require.Len(t, checkouts, 1)
	assert.Equal(t, alice.id, checkouts[0].HolderID)
	assert.False(t, checkouts[0].Open())

	rec = do(t, h, &alice, http.MethodGet, base+"/maintenance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	windows := decodeBody[handler.ListResponse[domain.MaintenanceWindow]](t, rec).Data
	require.Len(t, windows, 1)
	assert.True(t, windows[0].EndsAt.Equal(now.Add(90*time.Minute)), "ending maintenance cuts the window at now")

	rec = do(t, h, &bob, http.MethodPost, base+"/claim", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
