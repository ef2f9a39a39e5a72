package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/posture.report/internal/posture"
)

// wantPragmas lists the connection settings every posture database runs
// with, as reported by sqlite.
var wantPragmas = []struct {
	name string
	want string
}{
	{"journal_mode", "wal"},
	{"busy_timeout", "5000"},
	{"synchronous", "1"}, // NORMAL
	{"temp_store", "2"},  // MEMORY
}

func assertPragmas(t *testing.T, db *DB) {
	t.Helper()
	for _, p := range wantPragmas {
		var got string
		require.NoError(t, db.QueryRow("PRAGMA "+p.name).Scan(&got), p.name)
		assert.Equal(t, p.want, got, "PRAGMA %s", p.name)
	}
}

func TestNewDB_PragmasAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posture.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()

	assertPragmas(t, db)

	for _, table := range []string{"sessions", "pose_events", "envelope_snapshots", "alerts"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, "table %s", table)
	}

	latest, err := GetLatestMigrationVersion(MigrationsFS())
	require.NoError(t, err)
	version, dirty, err := db.MigrateVersion(MigrationsFS())
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	// a pose write goes through the write-ahead log
	s, err := db.CreateSession("synthetic", "{}")
	require.NoError(t, err)
	_, err = db.InsertPoseEvent(s.ID, time.Unix(1700000000, 0), posture.Result{TrackingID: 1, Label: posture.LabelConcentrating})
	require.NoError(t, err)
	_, err = os.Stat(path + "-wal")
	assert.NoError(t, err, "WAL file should exist while the database is open")
}

func TestOpenDB_PragmasOnExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posture.db")
	created, err := NewDB(path)
	require.NoError(t, err)
	s, err := created.CreateSession("replay:session.gob", "{}")
	require.NoError(t, err)
	require.NoError(t, created.Close())

	// the migrate subcommand opens without migrating; settings still apply
	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	assertPragmas(t, db)
	got, err := db.GetSession(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "replay:session.gob", got.Source)
}
