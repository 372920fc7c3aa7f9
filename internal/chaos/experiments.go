// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gearledger/internal/calendar"
	"gearledger/internal/domain"
	"gearledger/internal/lifecycle"
)

// API is the part of the HTTP client the experiments drive.
// *clients.Client satisfies it.
type API interface {
	CreateEquipment(ctx context.Context, in lifecycle.NewEquipment, cmd lifecycle.Command) (domain.Equipment, error)
	Claim(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	Release(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	Retire(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	ScheduleMaintenance(ctx context.Context, equipmentID uuid.UUID, in lifecycle.NewWindow, cmd lifecycle.Command) (domain.MaintenanceWindow, error)
	EndMaintenance(ctx context.Context, equipmentID uuid.UUID, cmd lifecycle.Command) (domain.Equipment, error)
	ListCheckouts(ctx context.Context, actor domain.Actor, equipmentID uuid.UUID) ([]domain.Checkout, error)
	ListMaintenance(ctx context.Context, actor domain.Actor, equipmentID uuid.UUID) ([]domain.MaintenanceWindow, error)
}

// Suite builds the experiments against one API. Every piece of equipment an
// experiment creates joins the fleet the steady-state metrics inspect.
type Suite struct {
	api         API
	operator    domain.Actor
	concurrency int
	duration    time.Duration

	mu    sync.Mutex
	fleet []uuid.UUID
}

// NewSuite returns experiments that fire concurrency racing requests and then
// observe for duration. operator must hold an elevated role.
func NewSuite(api API, operator domain.Actor, concurrency int, duration time.Duration) *Suite {
	if concurrency < 2 {
		concurrency = 2
	}
	return &Suite{api: api, operator: operator, concurrency: concurrency, duration: duration}
}

// Register adds every experiment of the suite to e.
func (s *Suite) Register(e *Engine) {
	e.RegisterExperiment(s.ConcurrentClaimRace())
	e.RegisterExperiment(s.ClaimVersusMaintenanceRace())
}

func (s *Suite) adopt(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fleet = append(s.fleet, id)
}

func (s *Suite) equipment() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.fleet...)
}

// MaxOpenCheckouts is the largest number of open checkouts held on any one
// piece of equipment in the fleet. Anything above one is a double booking.
func (s *Suite) MaxOpenCheckouts() Metric {
	return Metric{
		Name: "max_open_checkouts",
		Query: func(ctx context.Context) (float64, error) {
			most := 0
			for _, id := range s.equipment() {
				checkouts, err := s.api.ListCheckouts(ctx, s.operator, id)
				if err != nil {
					return 0, err
				}
				open := 0
				for _, co := range checkouts {
					if co.Open() {
						open++
					}
				}
				most = max(most, open)
			}
			return float64(most), nil
		},
		Threshold: Threshold{Operator: "<=", Value: 1},
	}
}

// CheckoutsDuringMaintenance counts checkouts whose custody overlaps a
// maintenance window on the same equipment.
func (s *Suite) CheckoutsDuringMaintenance() Metric {
	return Metric{
		Name: "checkouts_during_maintenance",
		Query: func(ctx context.Context) (float64, error) {
			overlaps := 0
			for _, id := range s.equipment() {
				checkouts, err := s.api.ListCheckouts(ctx, s.operator, id)
				if err != nil {
					return 0, err
				}
				windows, err := s.api.ListMaintenance(ctx, s.operator, id)
				if err != nil {
					return 0, err
				}
				for _, co := range checkouts {
					held := calendar.From(co.ClaimedAt)
					if co.ReturnedAt != nil {
						held = calendar.Between(co.ClaimedAt, *co.ReturnedAt)
					}
					for _, w := range windows {
						if held.Overlaps(calendar.Between(w.StartsAt, w.EndsAt)) {
							overlaps++
						}
					}
				}
			}
			return float64(overlaps), nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// race is the outcome of one burst of competing commands.
type race struct {
	equipment uuid.UUID

	mu      sync.Mutex
	winners int
	holder  domain.Actor
	window  *domain.MaintenanceWindow
}

func (r *race) metric(name string) Metric {
	return Metric{
		Name: name,
		Query: func(context.Context) (float64, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			return float64(r.winners), nil
		},
		Threshold: Threshold{Operator: "<=", Value: 1},
	}
}

func (r *race) win(update func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winners++
	update()
}

// create adds a fresh piece of equipment to the fleet.
func (s *Suite) create(ctx context.Context, prefix string) (uuid.UUID, error) {
	tag := uuid.NewString()[:8]
	eq, err := s.api.CreateEquipment(ctx, lifecycle.NewEquipment{
		Name: prefix + " " + tag,
		Slug: prefix + "-" + tag,
	}, s.command("chaos setup"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("create equipment: %w", err)
	}
	s.adopt(eq.ID)
	return eq.ID, nil
}

func (s *Suite) command(note string) lifecycle.Command {
	return lifecycle.Command{Actor: s.operator, Metadata: []byte(fmt.Sprintf(`{"source":"chaos","note":%q}`, note))}
}

func staff() domain.Actor {
	return domain.Actor{UserID: uuid.New(), Roles: []string{"staff"}}
}

// lost reports whether err is the expected outcome of losing a race.
func lost(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}

// cleanup releases whatever the race left behind and retires the equipment so
// it no longer takes part in later experiments' races.
func (s *Suite) cleanup(r *race) Action {
	return Action{
		Type:   "cleanup",
		Target: "lifecycle-engine",
		Execute: func(ctx context.Context) error {
			if r.equipment == uuid.Nil {
				return nil
			}
			var errs []error
			if r.holder.Authenticated() {
				if _, err := s.api.Release(ctx, r.equipment, lifecycle.Command{Actor: r.holder}); err != nil {
					errs = append(errs, fmt.Errorf("release: %w", err))
				}
			}
			if r.window != nil {
				if _, err := s.api.EndMaintenance(ctx, r.equipment, s.command("chaos rollback")); err != nil && !lost(err) {
					errs = append(errs, fmt.Errorf("end maintenance: %w", err))
				}
			}
			if _, err := s.api.Retire(ctx, r.equipment, s.command("chaos rollback")); err != nil {
				errs = append(errs, fmt.Errorf("retire: %w", err))
			}
			return errors.Join(errs...)
		},
	}
}

// ConcurrentClaimRace fires concurrent claims from different users at one
// piece of equipment. Exactly one may win.
func (s *Suite) ConcurrentClaimRace() Experiment {
	r := &race{}
	return Experiment{
		Name:       "concurrent-claim-race",
		Hypothesis: "Concurrent claims on one piece of equipment produce exactly one checkout",
		SteadyState: []Metric{
			s.MaxOpenCheckouts(),
			r.metric("claim_winners"),
		},
		Method: []Action{{
			Type:   "concurrent-claims",
			Target: "lifecycle-engine",
			Execute: func(ctx context.Context) error {
				id, err := s.create(ctx, "chaos-claim")
				if err != nil {
					return err
				}
				r.equipment = id

				var (
					wg   sync.WaitGroup
					mu   sync.Mutex
					errs []error
				)
				for range s.concurrency {
					wg.Add(1)
					go func(actor domain.Actor) {
						defer wg.Done()
						_, err := s.api.Claim(ctx, id, lifecycle.Command{Actor: actor})
						switch {
						case err == nil:
							r.win(func() { r.holder = actor })
						case !lost(err):
							mu.Lock()
							errs = append(errs, err)
							mu.Unlock()
						}
					}(staff())
				}
				wg.Wait()
				return errors.Join(errs...)
			},
		}},
		Rollback: []Action{s.cleanup(r)},
		Validation: []Assertion{
			{
				Metric:    "claim_winners",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one concurrent claim should succeed",
			},
			{
				Metric:    "max_open_checkouts",
				Condition: func(v float64) bool { return v <= 1 },
				Message:   "No equipment may hold more than one open checkout",
			},
		},
		Duration:    s.duration,
		BlastRadius: 0.1,
	}
}

// ClaimVersusMaintenanceRace races claims against a maintenance window that
// starts immediately. Either the window or one claim wins, never both.
func (s *Suite) ClaimVersusMaintenanceRace() Experiment {
	r := &race{}
	return Experiment{
		Name:       "claim-vs-maintenance-race",
		Hypothesis: "A checkout never overlaps a maintenance window, however the requests interleave",
		SteadyState: []Metric{
			s.MaxOpenCheckouts(),
			s.CheckoutsDuringMaintenance(),
			r.metric("race_winners"),
		},
		Method: []Action{{
			Type:   "claim-vs-maintenance",
			Target: "lifecycle-engine",
			Execute: func(ctx context.Context) error {
				id, err := s.create(ctx, "chaos-maint")
				if err != nil {
					return err
				}
				r.equipment = id

				var (
					wg   sync.WaitGroup
					mu   sync.Mutex
					errs []error
				)
				fail := func(err error) {
					mu.Lock()
					defer mu.Unlock()
					errs = append(errs, err)
				}

				wg.Add(1)
				go func() {
					defer wg.Done()
					now := time.Now().UTC()
					w, err := s.api.ScheduleMaintenance(ctx, id, lifecycle.NewWindow{
						StartsAt: now,
						EndsAt:   now.Add(s.duration + time.Hour),
						Reason:   "chaos: claim versus maintenance",
					}, s.command("chaos inject"))
					switch {
					case err == nil:
						r.win(func() { r.window = &w })
					case !lost(err):
						fail(err)
					}
				}()
				for range s.concurrency - 1 {
					wg.Add(1)
					go func(actor domain.Actor) {
						defer wg.Done()
						_, err := s.api.Claim(ctx, id, lifecycle.Command{Actor: actor})
						switch {
						case err == nil:
							r.win(func() { r.holder = actor })
						case !lost(err):
							fail(err)
						}
					}(staff())
				}
				wg.Wait()
				return errors.Join(errs...)
			},
		}},
		Rollback: []Action{s.cleanup(r)},
		Validation: []Assertion{
			{
				Metric:    "race_winners",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one of the claims or the maintenance window should win",
			},
			{
				Metric:    "checkouts_during_maintenance",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No checkout may overlap a maintenance window",
			},
		},
		Duration:    s.duration,
		BlastRadius: 0.1,
	}
}
