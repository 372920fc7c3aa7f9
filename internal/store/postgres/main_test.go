package postgres_test

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"testing"

	"gearledger/internal/store/postgres"
	"gearledger/internal/testutil"
)

// TestMain applies all pending migrations once for the package so individual
// tests never think about schema state.
func TestMain(m *testing.M) {
	if os.Getenv("TEST_DATABASE_URL") == "" {
		os.Exit(m.Run())
	}

	db := testutil.MustOpenSQLDB(os.Getenv("TEST_DATABASE_URL"))

	if err := postgres.Migrate(context.Background(), db, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		log.Fatalf("TestMain: run migrations: %v", err)
	}
	db.Close()

	os.Exit(m.Run())
}
