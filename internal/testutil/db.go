// internal/testutil/db.go
package testutil

import (
	"path/filepath"
	"testing"

	internal_storage "github.com/fleetworks/botflow/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// TestDB holds a migrated sqlite store backed by a temp file.
type TestDB struct {
	Store *internal_storage.SQLiteStore
	Path  string
}

// SetupTestDB creates a sqlite database in t.TempDir and applies the schema
// migrations. The file is removed with the temp dir when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "botflow_test.db")

	m, err := migrate.New("file://../../migrations", "sqlite://"+path)
	if err != nil {
		t.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
		t.Fatalf("Failed to close migrator: %v / %v", srcErr, dbErr)
	}

	store, err := internal_storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	return &TestDB{Store: store, Path: path}
}

// Teardown closes the store.
func (td *TestDB) Teardown(t *testing.T) {
	t.Helper()
	if err := td.Store.Close(); err != nil {
		t.Errorf("Failed to close store: %v", err)
	}
}
