package postgres

import (
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"gearledger/internal/domain"
)

// BreakerConfig tunes the circuit breaker in front of the database.
type BreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // requests allowed through while half-open
	Interval              time.Duration // closed-state count reset period, 0 never resets
	Timeout               time.Duration // open duration before probing again
	FailureThreshold      uint32        // consecutive failures that trip
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

// DefaultBreakerConfig returns the production defaults.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                  name,
		MaxRequests:           3,
		Interval:              60 * time.Second,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}
}

// newBreaker builds a breaker that only counts infrastructure failures.
// Conflicts, validation errors and missing rows are answers, not outages.
func newBreaker(cfg BreakerConfig, logger *slog.Logger, hook func(string, gobreaker.State, gobreaker.State)) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests >= cfg.MinRequestsToTrip {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatioThreshold
			}
			return false
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrStoreUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if hook != nil {
				hook(name, from, to)
			}
		},
	})
}
