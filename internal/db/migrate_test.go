package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"000001_create_test_table.up.sql":   {Data: []byte(`CREATE TABLE test_table (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
		"000001_create_test_table.down.sql": {Data: []byte(`DROP TABLE test_table;`)},
		"000002_add_test_column.up.sql":     {Data: []byte(`ALTER TABLE test_table ADD COLUMN description TEXT;`)},
		"000002_add_test_column.down.sql":   {Data: []byte(`ALTER TABLE test_table DROP COLUMN description;`)},
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUpDownTo(t *testing.T) {
	db := openTestDB(t)
	migrations := testMigrations()

	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("expected fresh db at 0/clean, got %d/%v", version, dirty)
	}

	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.MigrateUp(migrations); err != nil {
		t.Errorf("second MigrateUp should be a no-op, got %v", err)
	}
	version, _, _ = db.MigrateVersion(migrations)
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if _, err := db.Exec(`INSERT INTO test_table (name, description) VALUES ('a', 'b')`); err != nil {
		t.Errorf("expected description column: %v", err)
	}

	if err := db.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, _ = db.MigrateVersion(migrations)
	if version != 1 {
		t.Errorf("expected version 1 after down, got %d", version)
	}

	if err := db.MigrateTo(migrations, 2); err != nil {
		t.Fatalf("MigrateTo failed: %v", err)
	}
	version, _, _ = db.MigrateVersion(migrations)
	if version != 2 {
		t.Errorf("expected version 2 after MigrateTo, got %d", version)
	}
}

func TestMigrateForce(t *testing.T) {
	db := openTestDB(t)
	migrations := testMigrations()

	if err := db.MigrateForce(migrations, 1); err != nil {
		t.Fatalf("MigrateForce failed: %v", err)
	}
	version, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("expected 1/clean, got %d/%v", version, dirty)
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db := newTestDB(t)
	status, err := db.GetMigrationStatus(MigrationsFS())
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	latest, err := GetLatestMigrationVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest != 4 {
		t.Errorf("expected latest embedded version 4, got %d", latest)
	}
	if status["current_version"] != latest {
		t.Errorf("expected current_version %d, got %v", latest, status["current_version"])
	}
	if status["schema_migrations_exists"] != true {
		t.Errorf("expected schema_migrations table")
	}
	if status["dirty"] != false {
		t.Errorf("expected clean state")
	}
}

func TestGetLatestMigrationVersion_Empty(t *testing.T) {
	if _, err := GetLatestMigrationVersion(fstest.MapFS{}); err == nil {
		t.Error("expected error for empty migrations")
	}
}

func TestEmbeddedMigrationsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	migrations := MigrationsFS()
	for i := 0; i < 4; i++ {
		if err := db.MigrateDown(migrations); err != nil {
			t.Fatalf("MigrateDown step %d failed: %v", i, err)
		}
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('sessions','pose_events','envelope_snapshots','alerts')`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected all tables dropped, %d remain", n)
	}
	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('sessions','pose_events','envelope_snapshots','alerts')`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 tables, got %d", n)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	if err := RunMigrateCommand(nil, dbPath, &out); err == nil {
		t.Error("expected error for missing action")
	}
	if !strings.Contains(out.String(), "Database Migration Commands") {
		t.Errorf("expected help output, got %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"up"}, dbPath, &out); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 4") {
		t.Errorf("unexpected up output %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"status"}, dbPath, &out); err != nil {
		t.Fatalf("migrate status failed: %v", err)
	}
	if !strings.Contains(out.String(), "Latest available: 4") {
		t.Errorf("unexpected status output %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"down"}, dbPath, &out); err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 3") {
		t.Errorf("unexpected down output %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"version", "2"}, dbPath, &out); err != nil {
		t.Fatalf("migrate version failed: %v", err)
	}
	if err := RunMigrateCommand([]string{"version", "abc"}, dbPath, &out); err == nil {
		t.Error("expected error for invalid version")
	}
	if err := RunMigrateCommand([]string{"version"}, dbPath, &out); err == nil {
		t.Error("expected usage error")
	}
	if err := RunMigrateCommand([]string{"force", "2"}, dbPath, &out); err != nil {
		t.Errorf("migrate force failed: %v", err)
	}
	if err := RunMigrateCommand([]string{"bogus"}, dbPath, &out); err == nil {
		t.Error("expected error for unknown action")
	}
	if err := RunMigrateCommand([]string{"help"}, dbPath, &out); err != nil {
		t.Errorf("help failed: %v", err)
	}
}
