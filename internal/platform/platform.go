// Package platform builds the dependencies every binary shares: the logger,
// the tracer provider and the configured store.
package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"gearledger/internal/config"
	"gearledger/internal/metrics"
	"gearledger/internal/store"
	"gearledger/internal/store/memory"
	"gearledger/internal/store/postgres"
	"gearledger/internal/telemetry"
)

// NewLogger returns a JSON logger at the configured level.
func NewLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("platform.NewLogger: %w", err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
}

// Tracing installs the global tracer provider. Export is disabled when no
// OTLP endpoint is configured.
func Tracing(ctx context.Context, cfg config.Config, component, version string) (telemetry.Shutdown, error) {
	return telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName + "-" + component,
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRate:     1,
	})
}

// Store is the configured store together with its lifecycle hooks.
type Store struct {
	store.Store
	// Ready reports whether the backing database is reachable.
	Ready func(ctx context.Context) error
	// Close releases the database handle.
	Close func() error
}

// OpenStore opens the store selected by STORE_DRIVER. For Postgres it
// applies pending migrations when MIGRATE_ON_START is set and reports
// breaker state changes to m, which may be nil.
func OpenStore(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using the in-memory store; state is lost on restart")
		return &Store{
			Store: memory.New(),
			Ready: func(context.Context) error { return nil },
			Close: func() error { return nil },
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
		if err != nil {
			return nil, fmt.Errorf("platform.OpenStore: %w", err)
		}
		if cfg.MigrateOnStart {
			if err := postgres.Migrate(ctx, db, logger); err != nil {
				db.Close()
				return nil, fmt.Errorf("platform.OpenStore: %w", err)
			}
		}
		opts := []postgres.Option{postgres.WithLogger(logger)}
		if m != nil {
			opts = append(opts, postgres.WithBreakerStateHook(m.BreakerStateChanged))
		}
		s := postgres.New(db, opts...)
		logger.Info("database connection established", "max_open_conns", cfg.DBMaxOpenConns)
		return &Store{Store: s, Ready: s.Ping, Close: db.Close}, nil
	}
	return nil, fmt.Errorf("platform.OpenStore: unknown store driver %q", cfg.StoreDriver)
}
