package repository_test

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"encounter-tracker/internal/database"
	"encounter-tracker/internal/domain"
	"encounter-tracker/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err, "failed to open test database")

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func insertPlayer(t *testing.T, repo *repository.PlayerRepository, uid int64, name string) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), &domain.PlayerSnapshot{UID: uid, Name: name}, time.Now()))
}

func TestEncounterRepository_CreateConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewEncounterRepository(db, zerolog.Nop())

	enc, err := repo.Create(ctx, "enc-1", time.Now())
	require.NoError(t, err)
	require.True(t, enc.IsActive)
	require.Equal(t, "enc-1", enc.EncounterID)

	_, err = repo.Create(ctx, "enc-1", time.Now())
	require.ErrorIs(t, err, repository.ErrConflict)
}

func TestEncounterRepository_End(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewEncounterRepository(db, zerolog.Nop())

	_, err := repo.Create(ctx, "enc-1", time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.End(ctx, "enc-1", time.Now(), 42000))

	data, err := repo.Load(ctx, "enc-1")
	require.NoError(t, err)
	require.False(t, data.Encounter.IsActive)
	require.NotNil(t, data.Encounter.EndedAt)
	require.Equal(t, int64(42000), data.Encounter.DurationMs)
}

func TestEncounterRepository_EndUnknown(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewEncounterRepository(db, zerolog.Nop())

	err := repo.End(context.Background(), "missing", time.Now(), 0)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEncounterRepository_UpsertStatsDeduplicates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	encRepo := repository.NewEncounterRepository(db, zerolog.Nop())
	playerRepo := repository.NewPlayerRepository(db, zerolog.Nop())

	_, err := encRepo.Create(ctx, "enc-1", time.Now())
	require.NoError(t, err)
	insertPlayer(t, playerRepo, 42, "Alice")

	stats := &domain.PlayerEncounterStats{
		PlayerUID:         42,
		TotalAttackDamage: 100,
		NameSnapshot:      "Alice",
	}
	require.NoError(t, encRepo.UpsertStats(ctx, "enc-1", stats))

	stats.TotalAttackDamage = 250
	stats.TotalHeal = 30
	require.NoError(t, encRepo.UpsertStats(ctx, "enc-1", stats))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM player_encounter_stats`).Scan(&count))
	require.Equal(t, 1, count, "repeated saves must upsert, not insert")

	data, err := encRepo.Load(ctx, "enc-1")
	require.NoError(t, err)
	require.Len(t, data.Players, 1)
	require.Equal(t, int64(250), data.Players[0].Stats.TotalAttackDamage)
	require.Equal(t, int64(30), data.Players[0].Stats.TotalHeal)
}

func TestEncounterRepository_UpsertStatsUnknownEncounter(t *testing.T) {
	db := newTestDB(t)
	encRepo := repository.NewEncounterRepository(db, zerolog.Nop())

	err := encRepo.UpsertStats(context.Background(), "missing", &domain.PlayerEncounterStats{PlayerUID: 1})
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEncounterRepository_ListRecent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	encRepo := repository.NewEncounterRepository(db, zerolog.Nop())
	playerRepo := repository.NewPlayerRepository(db, zerolog.Nop())

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := encRepo.Create(ctx, fmt.Sprintf("enc-%d", i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	insertPlayer(t, playerRepo, 1, "Alice")
	insertPlayer(t, playerRepo, 2, "Bob")
	require.NoError(t, encRepo.UpsertStats(ctx, "enc-4", &domain.PlayerEncounterStats{PlayerUID: 1}))
	require.NoError(t, encRepo.UpsertStats(ctx, "enc-4", &domain.PlayerEncounterStats{PlayerUID: 2}))

	summaries, err := encRepo.ListRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	require.Equal(t, "enc-4", summaries[0].EncounterID, "most recent first")
	require.Equal(t, 2, summaries[0].PlayerCount)
	require.Equal(t, "enc-3", summaries[1].EncounterID)
	require.Equal(t, 0, summaries[1].PlayerCount)
}

func TestEncounterRepository_Count(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewEncounterRepository(db, zerolog.Nop())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)

	// Deliberately more rows than the default history page size, so the
	// count cannot be satisfied by a capped listing.
	for i := 0; i < 60; i++ {
		_, err := repo.Create(ctx, fmt.Sprintf("enc-%d", i), time.Now())
		require.NoError(t, err)
		require.NoError(t, repo.End(ctx, fmt.Sprintf("enc-%d", i), time.Now(), 1000))
	}

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 60, count)
}

func TestEncounterRepository_LoadNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewEncounterRepository(db, zerolog.Nop())

	_, err := repo.Load(context.Background(), "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEncounterRepository_DeleteOldKeepsNewest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	encRepo := repository.NewEncounterRepository(db, zerolog.Nop())
	playerRepo := repository.NewPlayerRepository(db, zerolog.Nop())

	insertPlayer(t, playerRepo, 1, "Alice")

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 150; i++ {
		id := fmt.Sprintf("enc-%03d", i)
		_, err := encRepo.Create(ctx, id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, encRepo.UpsertStats(ctx, id, &domain.PlayerEncounterStats{PlayerUID: 1}))
	}

	deleted, err := encRepo.DeleteOld(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, int64(50), deleted)

	summaries, err := encRepo.ListRecent(ctx, 200)
	require.NoError(t, err)
	require.Len(t, summaries, 100)
	require.Equal(t, "enc-149", summaries[0].EncounterID)
	require.Equal(t, "enc-050", summaries[99].EncounterID, "oldest survivor is the 100th newest")

	// Stats rows follow their encounters out.
	var statsCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM player_encounter_stats`).Scan(&statsCount))
	require.Equal(t, 100, statsCount)
}

func TestEncounterRepository_DeactivateAllActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewEncounterRepository(db, zerolog.Nop())

	_, err := repo.Create(ctx, "enc-1", time.Now())
	require.NoError(t, err)
	_, err = repo.Create(ctx, "enc-2", time.Now())
	require.NoError(t, err)

	n, err := repo.DeactivateAllActive(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	var active int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM encounters WHERE is_active = 1`).Scan(&active))
	require.Equal(t, 0, active)
}
