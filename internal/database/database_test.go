package database

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, zerolog.Nop())
	require.NoError(t, err, "failed to open test database")

	t.Cleanup(func() {
		db.Close()
	})
	return db, path
}

func TestOpenCreatesSchema(t *testing.T) {
	db, _ := newTestDB(t)

	tables := []string{"players", "encounters", "player_encounter_stats"}
	for _, table := range tables {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "table %s not found", table)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "test.db")

	db, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestForeignKeysEnabled(t *testing.T) {
	db, _ := newTestDB(t)

	var enabled int
	err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled)
	require.NoError(t, err)
	require.Equal(t, 1, enabled)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db1, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db1.Close())

	db2, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer db2.Close()
}

func TestOpenRecoversStaleEncounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path, zerolog.Nop())
	require.NoError(t, err)

	// Simulate a crash: an encounter left active.
	_, err = db.Exec(
		`INSERT INTO encounters (encounter_id, started_at, duration_ms, is_active) VALUES (?, ?, 0, 1)`,
		"stale-enc", time.Now())
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(path, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	var isActive bool
	var endedAt sql.NullTime
	err = db.QueryRow(`SELECT is_active, ended_at FROM encounters WHERE encounter_id = ?`, "stale-enc").
		Scan(&isActive, &endedAt)
	require.NoError(t, err)
	require.False(t, isActive, "stale encounter should be deactivated on startup")
	require.True(t, endedAt.Valid, "stale encounter should get an end time")
}

func TestBackup(t *testing.T) {
	db, path := newTestDB(t)

	_, err := db.Exec(
		`INSERT INTO encounters (encounter_id, started_at, duration_ms, is_active) VALUES (?, ?, 0, 0)`,
		"enc-1", time.Now())
	require.NoError(t, err)
	require.NoError(t, Checkpoint(db))

	dest := filepath.Join(t.TempDir(), "backups", "copy.db")
	require.NoError(t, Backup(path, dest))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestBackupMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := Backup(filepath.Join(dir, "nope.db"), filepath.Join(dir, "copy.db"))
	require.Error(t, err)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSizeInBytes(t *testing.T) {
	db, path := newTestDB(t)
	require.NoError(t, Checkpoint(db))

	require.Greater(t, SizeInBytes(path), int64(0))
	require.Equal(t, int64(0), SizeInBytes(filepath.Join(t.TempDir(), "missing.db")))
}
