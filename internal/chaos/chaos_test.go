package chaos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	return NewEngine(
		WithSampleInterval(5*time.Millisecond),
		WithPause(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func constant(name string, v float64, th Threshold) Metric {
	return Metric{Name: name, Query: func(context.Context) (float64, error) { return v, nil }, Threshold: th}
}

func TestThreshold_Holds(t *testing.T) {
	tests := []struct {
		op    string
		value float64
		want  bool
	}{
		{">", 2, true}, {">", 1, false},
		{"<", 0, true}, {"<", 1, false},
		{">=", 1, true}, {">=", 0, false},
		{"<=", 1, true}, {"<=", 2, false},
		{"==", 1, true}, {"==", 0, false},
		{"!=", 0, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Threshold{Operator: tc.op, Value: 1}.Holds(tc.value), "%v %s 1", tc.value, tc.op)
	}
}

func TestRunExperiment_abortsOnInvalidSteadyState(t *testing.T) {
	injected := false
	exp := Experiment{
		Name:        "broken",
		SteadyState: []Metric{constant("errors", 5, Threshold{Operator: "==", Value: 0})},
		Method:      []Action{{Execute: func(context.Context) error { injected = true; return nil }}},
		Duration:    10 * time.Millisecond,
	}

	result, err := newTestEngine().RunExperiment(context.Background(), exp)

	require.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, result.SteadyStateValid)
	require.Len(t, result.Violations, 1)
	assert.Equal(t, 5.0, result.Violations[0].Actual)
	assert.False(t, injected)
}

func TestRunExperiment_observesRecoversAndRollsBack(t *testing.T) {
	var samples atomic.Int64
	rolledBack := false
	// Violates on the first sample after injection, then recovers.
	flapping := Metric{
		Name: "errors",
		Query: func(context.Context) (float64, error) {
			if samples.Add(1) == 2 {
				return 3, nil
			}
			return 0, nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
	exp := Experiment{
		Name:        "flapping",
		SteadyState: []Metric{flapping},
		Method: []Action{{Target: "engine", Execute: func(context.Context) error {
			return errors.New("partial injection")
		}}},
		Rollback:   []Action{{Execute: func(context.Context) error { rolledBack = true; return nil }}},
		Validation: []Assertion{{Metric: "errors", Condition: func(v float64) bool { return v == 0 }, Message: "recovers"}},
		Duration:   40 * time.Millisecond,
	}

	e := newTestEngine()
	result, err := e.RunExperiment(context.Background(), exp)

	require.NoError(t, err)
	assert.True(t, rolledBack)
	assert.True(t, result.HypothesisHeld)
	require.NotEmpty(t, result.Violations)
	require.NotNil(t, result.MTTR)
	require.Len(t, result.ErrorEvents, 1)
	assert.Equal(t, "engine", result.ErrorEvents[0].Component)
	assert.GreaterOrEqual(t, len(result.Observations["errors"]), 2)
	assert.Len(t, e.Results(), 1)
}

func TestRunExperiment_failedAssertion(t *testing.T) {
	exp := Experiment{
		Name:        "never-met",
		SteadyState: []Metric{constant("winners", 0, Threshold{Operator: "<=", Value: 1})},
		Validation: []Assertion{
			{Metric: "winners", Condition: func(v float64) bool { return v == 1 }, Message: "one winner"},
			{Metric: "unobserved", Condition: func(float64) bool { return true }, Message: "needs data"},
		},
		Duration: 10 * time.Millisecond,
	}

	result, err := newTestEngine().RunExperiment(context.Background(), exp)

	require.NoError(t, err)
	assert.False(t, result.HypothesisHeld)
	assert.Equal(t, []string{"one winner", "needs data"}, result.FailedAssertions)
}

func TestRunExperiment_rollsBackAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var rollbackErr error
	exp := Experiment{
		Name:        "cancelled",
		SteadyState: []Metric{constant("ok", 1, Threshold{Operator: "==", Value: 1})},
		Method:      []Action{{Execute: func(context.Context) error { cancel(); return nil }}},
		Rollback: []Action{{Execute: func(ctx context.Context) error {
			rollbackErr = ctx.Err()
			return nil
		}}},
		Duration: time.Hour,
	}

	_, err := newTestEngine().RunExperiment(ctx, exp)

	require.NoError(t, err)
	assert.NoError(t, rollbackErr)
}

func TestExecuteGameDay_reportsEveryFailure(t *testing.T) {
	ok := Experiment{
		Name:        "ok",
		SteadyState: []Metric{constant("m", 0, Threshold{Operator: "==", Value: 0})},
		Validation:  []Assertion{{Metric: "m", Condition: func(v float64) bool { return v == 0 }}},
		Duration:    5 * time.Millisecond,
	}
	aborted := Experiment{
		Name:        "aborted",
		SteadyState: []Metric{constant("m", 1, Threshold{Operator: "==", Value: 0})},
		Duration:    5 * time.Millisecond,
	}

	results, err := newTestEngine().ExecuteGameDay(context.Background(), GameDay{
		Name:      "unit",
		Date:      time.Now(),
		Scenarios: []Experiment{ok, aborted, ok},
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "aborted: steady state invalid")
	assert.Len(t, results, 2)
}
