// Package testsupport holds helpers shared by package tests.
package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"accounts/backend/internal/infrastructure/sqlite"
)

// OpenSQLite opens a migrated database in the test's temporary directory. It is
// closed when the test ends.
func OpenSQLite(t *testing.T) *sqlite.Database {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.Config{DSN: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open sqlite database: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate sqlite database: %v", err)
	}
	return db
}
