// Package storetest opens the Postgres database used by repository
// integration tests.
package storetest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"go.uber.org/zap"

	"classroom/internal/store"
)

// Open connects to TEST_DATABASE_URL, applies migrations and empties every
// table. The test is skipped when the variable is unset.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := store.NewDB(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.Migrate(ctx, db.Client, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Client.ExecContext(ctx, `
		TRUNCATE streaks, attendance, substitution_requests, sessions, students, courses, instructors CASCADE
	`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db.Client
}

// Exec runs seed statements, failing the test on error.
func Exec(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}
