package repository_test

import (
	"context"
	"testing"
	"time"

	"encounter-tracker/internal/domain"
	"encounter-tracker/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPlayerRepository_UpsertPreservesFirstSeen(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := repository.NewPlayerRepository(db, zerolog.Nop())

	firstSeen := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, &domain.PlayerSnapshot{UID: 42, Name: "A", Level: 10}, firstSeen))

	later := time.Now().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, &domain.PlayerSnapshot{UID: 42, Name: "B", Level: 12}, later))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM players`).Scan(&count))
	require.Equal(t, 1, count)

	p, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "B", p.Name)
	require.Equal(t, 12, p.Level)
	require.True(t, firstSeen.Equal(p.FirstSeenAt), "first seen must survive upserts")
	require.True(t, later.Equal(p.LastSeenAt))
}

func TestPlayerRepository_UpsertRejectsBadUID(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPlayerRepository(db, zerolog.Nop())

	err := repo.Upsert(context.Background(), &domain.PlayerSnapshot{UID: 0, Name: "ghost"}, time.Now())
	require.ErrorIs(t, err, repository.ErrInvalidInput)

	err = repo.Upsert(context.Background(), &domain.PlayerSnapshot{UID: -5}, time.Now())
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}

func TestPlayerRepository_GetNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPlayerRepository(db, zerolog.Nop())

	_, err := repo.Get(context.Background(), 404)
	require.ErrorIs(t, err, repository.ErrNotFound)
}
