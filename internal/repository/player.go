package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"encounter-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

func (r *PlayerRepository) Get(ctx context.Context, uid int64) (*domain.Player, error) {
	var p domain.Player
	err := r.db.QueryRowContext(ctx,
		`SELECT uid, name, profession_id, sub_profession, spec, class,
			combat_power, level, rank_level, critical, lucky, max_hp,
			first_seen_at, last_seen_at, is_npc
		 FROM players WHERE uid = ?`, uid).
		Scan(&p.UID, &p.Name, &p.ProfessionID, &p.SubProfession, &p.Spec,
			&p.Class, &p.CombatPower, &p.Level, &p.RankLevel, &p.Critical,
			&p.Lucky, &p.MaxHP, &p.FirstSeenAt, &p.LastSeenAt, &p.IsNPC)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("player %d: %w", uid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	return &p, nil
}

// Upsert inserts a new player or refreshes the mutable snapshot fields of
// an existing one. first_seen_at is written on insert only.
func (r *PlayerRepository) Upsert(ctx context.Context, snapshot *domain.PlayerSnapshot, seenAt time.Time) error {
	if snapshot.UID <= 0 {
		return fmt.Errorf("player uid %d: %w", snapshot.UID, ErrInvalidInput)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO players (
			uid, name, profession_id, sub_profession, spec, class,
			combat_power, level, rank_level, critical, lucky, max_hp,
			first_seen_at, last_seen_at, is_npc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			name = excluded.name,
			profession_id = excluded.profession_id,
			sub_profession = excluded.sub_profession,
			spec = excluded.spec,
			class = excluded.class,
			combat_power = excluded.combat_power,
			level = excluded.level,
			rank_level = excluded.rank_level,
			critical = excluded.critical,
			lucky = excluded.lucky,
			max_hp = excluded.max_hp,
			last_seen_at = excluded.last_seen_at,
			is_npc = excluded.is_npc`,
		snapshot.UID, snapshot.Name, snapshot.ProfessionID, snapshot.SubProfession,
		snapshot.Spec, snapshot.Class, snapshot.CombatPower, snapshot.Level,
		snapshot.RankLevel, snapshot.Critical, snapshot.Lucky, snapshot.MaxHP,
		seenAt, seenAt, snapshot.IsNPC)
	if err != nil {
		return fmt.Errorf("failed to upsert player %d: %w", snapshot.UID, err)
	}
	return nil
}
