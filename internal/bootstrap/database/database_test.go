package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"todoapi/internal/bootstrap/config"
)

func TestOpenSQLiteCreatesDirectoryAndAppliesPool(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	db, err := Open(context.Background(), config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          filepath.Join(dir, "todo.sqlite") + "?_pragma=busy_timeout(5000)",
		MaxOpenConns: 3,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("sqlite directory missing: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 3 {
		t.Fatalf("MaxOpenConnections = %d, want 3", got)
	}
	if !db.Config.SkipDefaultTransaction {
		t.Fatalf("SkipDefaultTransaction = false")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("Open() expected error for unsupported driver")
	}
}
