// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/countrelay/internal/infrastructure/config"
	"github.com/nerrad567/countrelay/internal/infrastructure/database"
	_ "github.com/nerrad567/countrelay/migrations" // registers the embedded schema
)

// OpenDB opens a fresh SQLite file under t.TempDir() and applies the real
// migrations. The database is closed when the test ends.
func OpenDB(t testing.TB) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "countrelay.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close() //nolint:errcheck // Test cleanup
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}
