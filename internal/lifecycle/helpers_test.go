package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gearledger/internal/domain"
	"gearledger/internal/lifecycle"
	"gearledger/internal/store"
	"gearledger/internal/store/memory"
)

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	engine *lifecycle.Engine
	store  *memory.Store
	clock  *fakeClock
	admin  lifecycle.Command
}

func newFixture(t testingT, policy lifecycle.Policy) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), policy)
}

// newFixtureOn builds an engine over s; s may wrap the memory store returned
// in the fixture.
func newFixtureOn(t testingT, s store.Store, policy lifecycle.Policy) *fixture {
	t.Helper()
	clock := newFakeClock()
	eng, err := lifecycle.NewEngine(s, policy,
		lifecycle.WithClock(clock.Now),
		lifecycle.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	mem, _ := s.(*memory.Store)
	if w, ok := s.(interface{ Unwrap() *memory.Store }); ok {
		mem = w.Unwrap()
	}
	return &fixture{engine: eng, store: mem, clock: clock, admin: adminCmd()}
}

func userCmd() lifecycle.Command {
	return lifecycle.Command{Actor: domain.Actor{UserID: uuid.New(), Roles: []string{"staff"}}}
}

func adminCmd() lifecycle.Command {
	return lifecycle.Command{Actor: domain.Actor{UserID: uuid.New(), Roles: []string{"admin"}}}
}

func (f *fixture) create(t testingT, slug string) domain.Equipment {
	t.Helper()
	eq, err := f.engine.CreateEquipment(context.Background(), lifecycle.NewEquipment{Name: "Item " + slug, Slug: slug}, f.admin)
	require.NoError(t, err)
	return eq
}

func (f *fixture) history(t testingT, id uuid.UUID) []domain.Action {
	t.Helper()
	events, err := f.engine.GetHistory(context.Background(), id)
	require.NoError(t, err)
	out := make([]domain.Action, len(events))
	for i, ev := range events {
		out[i] = ev.Action
	}
	return out
}

func (f *fixture) stored(t testingT, id uuid.UUID) domain.Equipment {
	t.Helper()
	eq, err := f.store.GetEquipment(context.Background(), id)
	require.NoError(t, err)
	return eq
}
