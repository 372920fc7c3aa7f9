// Package postgres implements store.Store on PostgreSQL through database/sql
// and lib/pq. Each unit is a READ COMMITTED transaction that starts by locking
// the equipment row it is keyed on; the schema's partial unique index and
// exclusion constraint back the engine's invariants at the storage level.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // registers the "postgres" driver
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gearledger/internal/domain"
	"gearledger/internal/store"
	"gearledger/migrations"
)

// querier is satisfied by both *sql.DB and *sql.Tx, so read queries are
// written once and used inside and outside units.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL store.
type Store struct {
	queries
	db      *sql.DB
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	breaker     BreakerConfig
	onStateHook func(name string, from, to gobreaker.State)
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(o *options) { o.breaker = cfg }
}

// WithBreakerStateHook registers fn to be called after every breaker state
// change, in addition to the log line.
func WithBreakerStateHook(fn func(name string, from, to gobreaker.State)) Option {
	return func(o *options) { o.onStateHook = fn }
}

// New wraps an open database handle.
func New(db *sql.DB, opts ...Option) *Store {
	o := options{logger: slog.Default(), breaker: DefaultBreakerConfig("postgres")}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		queries: queries{q: db},
		db:      db,
		tracer:  otel.Tracer("gearledger/store/postgres"),
		breaker: newBreaker(o.breaker, o.logger, o.onStateHook),
		logger:  o.logger,
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	return db, nil
}

// Migrate applies every pending embedded migration. An advisory lock keeps
// concurrent callers from applying the same version twice.
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return fmt.Errorf("postgres.Migrate: create locker: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS, goose.WithSessionLocker(locker))
	if err != nil {
		return fmt.Errorf("postgres.Migrate: create provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("postgres.Migrate: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BreakerState returns the current circuit breaker state.
func (s *Store) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Atomic runs fn in one transaction holding the row lock of key. Errors
// returned by fn pass through unchanged; failures of the transaction itself
// are classified.
func (s *Store) Atomic(ctx context.Context, key uuid.UUID, fn func(ctx context.Context, tx store.Tx) error) error {
	ctx, span := s.tracer.Start(ctx, "store.atomic",
		trace.WithAttributes(attribute.String("equipment.id", key.String())),
	)
	defer span.End()

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.run(ctx, key, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("postgres.Store.Atomic: %w: %w", domain.ErrStoreUnavailable, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *Store) run(ctx context.Context, key uuid.UUID, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("postgres.Store.Atomic: begin: %w", classify(err))
	}
	defer sqlTx.Rollback()

	// Units for equipment that does not exist yet (creation) lock nothing here;
	// the primary key and slug constraints serialize them instead.
	if _, err := sqlTx.ExecContext(ctx, `SELECT 1 FROM equipment WHERE id = $1 FOR UPDATE`, key); err != nil {
		return fmt.Errorf("postgres.Store.Atomic: lock %s: %w", key, classify(err))
	}

	if err := fn(ctx, &pgTx{queries: queries{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("postgres.Store.Atomic: commit: %w", classify(err))
	}
	return nil
}

// pgTx is the store.Tx handed to Atomic callbacks.
type pgTx struct {
	queries
}

var _ store.Tx = (*pgTx)(nil)

// queries holds the read statements shared by Store and pgTx.
type queries struct {
	q querier
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// affectedOne returns domain.ErrNotFound when res touched no row.
func affectedOne(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return nil
}
