// Package config loads runtime settings from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"gearledger/internal/lifecycle"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds every setting the binaries read. All fields come from the
// environment; see the envconfig tags for names and defaults.
type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	StoreDriver     string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	DBMaxOpenConns  int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MigrateOnStart  bool          `envconfig:"MIGRATE_ON_START" default:"true"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`

	ClaimMode     string   `envconfig:"CLAIM_MODE" default:"direct"`
	ReleasePolicy string   `envconfig:"RELEASE_POLICY" default:"holder_or_elevated"`
	ElevatedRoles []string `envconfig:"ELEVATED_ROLES" default:"admin,manager"`

	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"40"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"gearledger"`

	ReconcileSchedule string `envconfig:"RECONCILE_SCHEDULE" default:"@every 1m"`
}

// Chaos holds the settings of the chaos runner, which talks to the API over
// HTTP and never opens the store.
type Chaos struct {
	APIURL       string `envconfig:"API_URL" default:"http://localhost:8080"`
	LogLevel     string `envconfig:"LOG_LEVEL" default:"info"`
	OperatorRole string `envconfig:"CHAOS_OPERATOR_ROLE" default:"admin"`
}

// LoadChaos reads the chaos runner settings.
func LoadChaos() (Chaos, error) {
	var c Chaos
	if err := envconfig.Process("", &c); err != nil {
		return Chaos{}, fmt.Errorf("config.LoadChaos: %w", err)
	}
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("API_URL must not be empty"))
	}
	if c.OperatorRole == "" {
		errs = append(errs, errors.New("CHAOS_OPERATOR_ROLE must not be empty"))
	}
	if _, err := (Config{LogLevel: c.LogLevel}).SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Chaos{}, fmt.Errorf("config.LoadChaos: %w", err)
	}
	return c, nil
}

// Load reads the environment and validates the result. The error names every
// problem found, not just the first.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)
	cfg.ElevatedRoles = trimAll(cfg.ElevatedRoles)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Validate checks the cross-field rules envconfig cannot express.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, c.StoreDriver))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Policy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LOG_LEVEL.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// Policy returns the lifecycle policy described by the configuration.
func (c Config) Policy() lifecycle.Policy {
	return lifecycle.Policy{
		ClaimMode:     lifecycle.ClaimMode(c.ClaimMode),
		ReleasePolicy: lifecycle.ReleasePolicy(c.ReleasePolicy),
		ElevatedRoles: c.ElevatedRoles,
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
