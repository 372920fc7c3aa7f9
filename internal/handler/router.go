package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"gearledger/internal/metrics"
	"gearledger/internal/middleware"
)

// RouterConfig collects what NewRouter wires around the handlers.
type RouterConfig struct {
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	CORSOrigins  []string
	RateLimitRPS float64
	RateBurst    int
	MaxBodyBytes int64
	TracerName   string
	// Ready reports whether the store is reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter returns the chi router serving the whole API.
func NewRouter(s *Server, cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.TracerName == "" {
		cfg.TracerName = "gearledger/http"
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewSlogLogger(cfg.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewTracing(cfg.TracerName, "/healthz", "/readyz", "/metrics"))
	r.Use(middleware.NewMetrics(cfg.Metrics))
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(cfg.MaxBodyBytes))

	r.Get("/healthz", s.Health)
	r.Get("/readyz", s.readiness(cfg.Ready))
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateBurst, cfg.Metrics.RateLimited.Inc)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor)
		r.Use(limiter.Handler)
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Route("/equipment", func(r chi.Router) {
			r.Post("/", s.CreateEquipment)
			r.Get("/", s.ListEquipment)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetEquipment)
				r.Delete("/", s.DeleteEquipment)

				r.Post("/claim", s.Claim)
				r.Post("/checkout", s.CheckOut)
				r.Post("/release", s.Release)
				r.Post("/retire", s.Retire)

				r.Post("/maintenance", s.ScheduleMaintenance)
				r.Get("/maintenance", s.ListMaintenance)
				r.Post("/maintenance/end", s.EndMaintenance)
				r.Delete("/maintenance/{windowID}", s.CancelMaintenance)

				r.Get("/checkouts", s.ListCheckouts)
				r.Get("/history", s.GetHistory)
			})
		})

		r.Get("/actors/{userID}/history", s.ActorHistory)
	})

	return r
}
