// internal/lifecycle/engine.go
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"gearledger/internal/audit"
	"gearledger/internal/calendar"
	"gearledger/internal/domain"
	"gearledger/internal/store"
)

// Engine implements Service on top of a store.Store. It holds no state of its
// own between calls: every transition reads, validates and writes inside one
// atomic unit keyed on the equipment ID.
type Engine struct {
	store  store.Store
	audit  *audit.Log
	policy Policy
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer

	meterProvider metric.MeterProvider
	transitions   metric.Int64Counter
	duration      metric.Float64Histogram
}

var _ Service = (*Engine)(nil)

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMeterProvider records transition metrics on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// NewEngine validates policy and builds an Engine.
func NewEngine(s store.Store, policy Policy, opts ...Option) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("lifecycle.NewEngine: %w", err)
	}
	e := &Engine{
		store:         s,
		audit:         audit.New(s),
		policy:        policy,
		now:           time.Now,
		logger:        slog.Default(),
		tracer:        otel.Tracer("gearledger/lifecycle"),
		meterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := e.meterProvider.Meter("gearledger/lifecycle")
	var err error
	e.transitions, err = meter.Int64Counter("gearledger.lifecycle.transitions",
		metric.WithDescription("Lifecycle commands by operation and outcome"))
	if err != nil {
		return nil, fmt.Errorf("lifecycle.NewEngine: transitions counter: %w", err)
	}
	e.duration, err = meter.Float64Histogram("gearledger.lifecycle.duration",
		metric.WithDescription("Lifecycle command latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("lifecycle.NewEngine: duration histogram: %w", err)
	}
	return e, nil
}

// clock returns now in UTC at the precision the Postgres store keeps.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// exec runs fn as one atomic unit on equipmentID and takes care of tracing,
// metrics, logging and error wrapping for operation op.
func (e *Engine) exec(ctx context.Context, op string, equipmentID uuid.UUID, actor domain.Actor, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := e.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(
		attribute.String("equipment.id", equipmentID.String()),
		attribute.String("actor.id", actor.UserID.String()),
	))
	defer span.End()

	start := time.Now()
	err := e.store.Atomic(ctx, equipmentID, fn)
	e.observe(ctx, op, start, err)

	log := e.logger.With("op", op, "equipment_id", equipmentID, "actor_id", actor.UserID)
	switch {
	case err == nil:
		level := slog.LevelInfo
		if op == "Reconcile" {
			// Runs for every equipment on each pass; the pass logs its own summary.
			level = slog.LevelDebug
		}
		log.Log(ctx, level, "transition applied")
		return nil
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Error("transition failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		log.Debug("transition rejected", "error", err)
		span.SetAttributes(attribute.String("outcome", outcome(err)))
	}
	return fmt.Errorf("lifecycle.Engine.%s: %w", op, err)
}

// reject records a command refused before any unit was started.
func (e *Engine) reject(ctx context.Context, op string, equipmentID uuid.UUID, actor domain.Actor, err error) error {
	e.observe(ctx, op, time.Now(), err)
	e.logger.Debug("transition rejected", "op", op, "equipment_id", equipmentID, "actor_id", actor.UserID, "error", err)
	return fmt.Errorf("lifecycle.Engine.%s: %w", op, err)
}

func (e *Engine) observe(ctx context.Context, op string, start time.Time, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome(err)))
	e.transitions.Add(ctx, 1, attrs)
	e.duration.Record(ctx, time.Since(start).Seconds(), attrs)
}

// outcome is the metric label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}

// requireIdentity rejects anonymous commands.
func requireIdentity(a domain.Actor) error {
	if !a.Authenticated() {
		return fmt.Errorf("%w: no authenticated actor", domain.ErrForbidden)
	}
	return nil
}

// requireElevated rejects commands from actors without an elevated role.
func (e *Engine) requireElevated(a domain.Actor) error {
	if err := requireIdentity(a); err != nil {
		return err
	}
	if !e.policy.elevated(a) {
		return fmt.Errorf("%w: requires one of roles %v", domain.ErrForbidden, e.policy.ElevatedRoles)
	}
	return nil
}

// snapshot is the state a transition validates against.
type snapshot struct {
	equipment domain.Equipment
	calendar  *calendar.Calendar
}

func load(ctx context.Context, r store.Reader, equipmentID uuid.UUID) (snapshot, error) {
	eq, err := r.GetEquipment(ctx, equipmentID)
	if err != nil {
		return snapshot{}, err
	}
	cal, err := calendar.Load(ctx, r, equipmentID)
	if err != nil {
		return snapshot{}, err
	}
	return snapshot{equipment: eq, calendar: cal}, nil
}

// save re-derives the status from cal and writes the equipment row.
func save(ctx context.Context, tx store.Tx, eq domain.Equipment, cal *calendar.Calendar, now time.Time) (domain.Equipment, error) {
	eq.Status = deriveStatus(eq, cal, now)
	eq.UpdatedAt = now
	if err := tx.UpdateEquipment(ctx, eq); err != nil {
		return domain.Equipment{}, err
	}
	return eq, nil
}

// record appends the single audit event of a transition.
func record(ctx context.Context, tx store.Tx, action domain.Action, cmd Command, equipmentID uuid.UUID, subject *uuid.UUID, now time.Time) error {
	_, err := tx.AppendAudit(ctx, domain.AuditEvent{
		Action:      action,
		ActorID:     cmd.Actor.UserID,
		EquipmentID: &equipmentID,
		SubjectID:   subject,
		Metadata:    cmd.Metadata,
		OccurredAt:  now,
	})
	return err
}
