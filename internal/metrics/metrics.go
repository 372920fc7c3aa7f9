// Package metrics owns the Prometheus registry exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
)

const namespace = "gearledger"

// Metrics holds the collectors shared by the HTTP server, the store breaker
// and the reconciler.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimited          prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	ReconcileRuns  *prometheus.CounterVec
	ReconcileFixed prometheus.Counter
}

// New creates a Metrics instance on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_requests_in_flight",
		Help:      "Number of HTTP requests currently being processed",
	})
	m.RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_rate_limited_total",
		Help:      "Requests rejected by the per-actor rate limiter",
	})

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	m.ReconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Status reconciliation passes by result",
		},
		[]string{"result"},
	)
	m.ReconcileFixed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_fixed_total",
		Help:      "Equipment whose stored status was corrected",
	})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimited,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.ReconcileRuns,
		m.ReconcileFixed,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one finished request. route is the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// BreakerStateChanged matches the hook signature of the Postgres store.
func (m *Metrics) BreakerStateChanged(name string, _, to gobreaker.State) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	if to == gobreaker.StateOpen {
		m.CircuitBreakerTrips.WithLabelValues(name).Inc()
	}
}

// RecordReconcile records one reconciliation pass.
func (m *Metrics) RecordReconcile(fixed int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ReconcileRuns.WithLabelValues(result).Inc()
	m.ReconcileFixed.Add(float64(fixed))
}
