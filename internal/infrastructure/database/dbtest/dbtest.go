// Package dbtest opens throwaway relay databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-relay/migrations" // registers the schema
)

// Open returns a migrated SQLite database in a temporary directory.
// It is closed automatically when the test finishes.
func Open(tb testing.TB) *database.DB {
	tb.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(tb.TempDir(), "relay.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		tb.Fatalf("migrating test database: %v", err)
	}
	return db
}
