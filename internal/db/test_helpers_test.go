package db

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/posture.report/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

// newTestDB creates a migrated database in a temp dir.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestSession creates a session row for tests that need one.
func newTestSession(t *testing.T, db *DB) *Session {
	t.Helper()
	s, err := db.CreateSession("test", `{"debug":true}`)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	return s
}
