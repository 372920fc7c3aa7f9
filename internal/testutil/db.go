// Package testutil provides shared helpers for integration tests.
// Helpers skip automatically when TEST_DATABASE_URL is not set, so unit tests
// run without a database.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq" // registers the "postgres" driver
)

// NewSQLDB opens a *sql.DB against TEST_DATABASE_URL and closes it when the
// test finishes.
func NewSQLDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := requireDSN(t)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("testutil.NewSQLDB: open: %v", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		t.Fatalf("testutil.NewSQLDB: ping: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// MustOpenSQLDB opens a *sql.DB for dsn and panics on any error. Use it in
// TestMain where no *testing.T is available. Callers close the handle.
func MustOpenSQLDB(dsn string) *sql.DB {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		panic("testutil.MustOpenSQLDB: open: " + err.Error())
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		panic("testutil.MustOpenSQLDB: ping: " + err.Error())
	}
	return db
}

func requireDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping integration test")
	}
	return dsn
}
