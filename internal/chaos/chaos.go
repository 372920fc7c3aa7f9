// internal/chaos/chaos.go
package chaos

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Experiment defines a chaos engineering test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
	Duration    time.Duration
	BlastRadius float64 // 0.0 to 1.0 (share of the fleet affected)
}

// Metric defines a measurable system property.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Holds reports whether value satisfies the threshold.
func (t Threshold) Holds(value float64) bool {
	switch t.Operator {
	case ">":
		return value > t.Value
	case "<":
		return value < t.Value
	case ">=":
		return value >= t.Value
	case "<=":
		return value <= t.Value
	case "==":
		return value == t.Value
	}
	return false
}

// Action is a fault injection or recovery step.
type Action struct {
	Type    string // concurrent-claims, claim-vs-maintenance, cleanup
	Target  string
	Execute func(context.Context) error
}

// Assertion validates the final observation of a metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// Result captures one experiment run.
type Result struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
	FailedAssertions []string               `json:"failed_assertions,omitempty"`
	MTTR             *time.Duration         `json:"mttr,omitempty"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// ErrSteadyStateInvalid aborts an experiment before anything is injected.
var ErrSteadyStateInvalid = errors.New("steady state invalid")

// Engine orchestrates chaos experiments.
type Engine struct {
	tracer         trace.Tracer
	logger         *slog.Logger
	sampleInterval time.Duration
	pause          time.Duration

	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

// Option customises an Engine.
type Option func(*Engine)

// WithSampleInterval sets how often steady-state metrics are sampled while
// observing. The default is one second.
func WithSampleInterval(d time.Duration) Option {
	return func(e *Engine) { e.sampleInterval = d }
}

// WithPause sets the wait between experiments of a game day. The default is 30s.
func WithPause(d time.Duration) Option {
	return func(e *Engine) { e.pause = d }
}

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tracer:         otel.Tracer("gearledger/chaos"),
		logger:         slog.Default(),
		sampleInterval: time.Second,
		pause:          30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterExperiment adds an experiment to the suite.
func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

// Experiments returns the registered experiments.
func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

// Results returns every finished run.
func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// RunExperiment validates the steady state, injects the method, samples the
// steady-state metrics for exp.Duration, rolls back and checks the assertions.
// Rollback runs even when the context is cancelled during observation.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
		ErrorEvents:    make([]ErrorEvent, 0),
	}

	span.AddEvent("validating_steady_state")
	if valid, violations := e.validateSteadyState(ctx, exp.SteadyState); !valid {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	e.observe(ctx, exp, result)

	span.AddEvent("rolling_back")
	// Rollback must run even if the caller gave up.
	rollbackCtx := context.WithoutCancel(ctx)
	for _, action := range exp.Rollback {
		if err := action.Execute(rollbackCtx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
		}
	}

	span.AddEvent("validating_assertions")
	result.FailedAssertions = validateAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.FailedAssertions) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// observe samples every steady-state metric once per interval until the
// experiment duration has elapsed. At least one sample is always taken.
func (e *Engine) observe(ctx context.Context, exp Experiment, result *Result) {
	observationCtx, cancel := context.WithTimeout(ctx, exp.Duration)
	defer cancel()

	ticker := time.NewTicker(e.sampleInterval)
	defer ticker.Stop()

	var recoveryStart time.Time
	recovered := false
	sample := func() {
		for _, metric := range exp.SteadyState {
			value, err := metric.Query(ctx)
			now := time.Now()
			if err != nil {
				result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{Timestamp: now, Error: err.Error(), Component: metric.Name})
				continue
			}
			result.Observations[metric.Name] = append(result.Observations[metric.Name], DataPoint{Timestamp: now, Value: value})

			if !metric.Threshold.Holds(value) {
				if recoveryStart.IsZero() {
					recoveryStart = now
				}
				result.Violations = append(result.Violations, MetricViolation{
					MetricName: metric.Name,
					Expected:   metric.Threshold.Value,
					Actual:     value,
					Timestamp:  now,
				})
			} else if !recoveryStart.IsZero() && !recovered {
				mttr := now.Sub(recoveryStart)
				result.MTTR = &mttr
				recovered = true
			}
		}
	}

	sample()
	for {
		select {
		case <-observationCtx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

func (e *Engine) validateSteadyState(ctx context.Context, metrics []Metric) (bool, []MetricViolation) {
	violations := make([]MetricViolation, 0)
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			e.logger.WarnContext(ctx, "steady state query failed", "metric", metric.Name, "error", err)
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     -1,
				Timestamp:  time.Now(),
			})
			continue
		}
		if !metric.Threshold.Holds(value) {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return len(violations) == 0, violations
}

// validateAssertions returns the messages of the assertions that failed on
// the final observation of their metric.
func validateAssertions(assertions []Assertion, result *Result) []string {
	var failed []string
	for _, a := range assertions {
		observations := result.Observations[a.Metric]
		if len(observations) == 0 || !a.Condition(observations[len(observations)-1].Value) {
			failed = append(failed, a.Message)
		}
	}
	return failed
}

// GameDay orchestrates a series of chaos experiments.
type GameDay struct {
	Name         string
	Date         time.Time
	Scenarios    []Experiment
	Participants []string
}

// ExecuteGameDay runs every scenario in order and returns their results. A
// scenario whose steady state is invalid is skipped; the game day goes on.
// The returned error reports hypotheses that did not hold.
func (e *Engine) ExecuteGameDay(ctx context.Context, gameDay GameDay) ([]Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", gameDay.Name)),
	)
	defer span.End()

	log := e.logger.With("gameday", gameDay.Name)
	log.InfoContext(ctx, "starting game day", "date", gameDay.Date, "participants", gameDay.Participants,
		"scenarios", len(gameDay.Scenarios))

	var (
		results []Result
		errs    []error
	)
	for i, scenario := range gameDay.Scenarios {
		if i > 0 && e.pause > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(e.pause):
			}
		}

		log.InfoContext(ctx, "running experiment", "n", i+1, "experiment", scenario.Name, "hypothesis", scenario.Hypothesis)
		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			log.ErrorContext(ctx, "experiment aborted", "experiment", scenario.Name, "error", err,
				"violations", len(result.Violations))
			errs = append(errs, errors.New(scenario.Name+": "+err.Error()))
			continue
		}
		results = append(results, *result)
		e.report(ctx, log, result)
		if !result.HypothesisHeld {
			errs = append(errs, errors.New(scenario.Name+": hypothesis violated"))
		}
	}
	return results, errors.Join(errs...)
}

func (e *Engine) report(ctx context.Context, log *slog.Logger, r *Result) {
	attrs := []any{
		"experiment", r.ExperimentName,
		"hypothesis_held", r.HypothesisHeld,
		"violations", len(r.Violations),
		"errors", len(r.ErrorEvents),
		"duration", r.Duration,
	}
	if r.MTTR != nil {
		attrs = append(attrs, "mttr", *r.MTTR)
	}
	if !r.HypothesisHeld {
		log.WarnContext(ctx, "hypothesis violated", append(attrs, "failed", r.FailedAssertions)...)
		return
	}
	log.InfoContext(ctx, "hypothesis held", attrs...)
}
