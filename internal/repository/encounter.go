package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"encounter-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type EncounterRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewEncounterRepository(sqlDB *sql.DB, logger zerolog.Logger) *EncounterRepository {
	return &EncounterRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// DeactivateAllActive closes every encounter still flagged active. Only the
// store's startup recovery pass calls this; a row left active means the
// previous process died without closing it.
func (r *EncounterRepository) DeactivateAllActive(ctx context.Context, endedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE encounters SET is_active = 0, ended_at = ? WHERE is_active = 1`,
		endedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate stale encounters: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Warn().Int64("count", n).Msg("deactivated stale encounters from previous session")
	}
	return n, nil
}

func (r *EncounterRepository) Create(ctx context.Context, encounterID string, startedAt time.Time) (*domain.Encounter, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO encounters (encounter_id, started_at, duration_ms, is_active)
		 VALUES (?, ?, 0, 1)`,
		encounterID, startedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("encounter %s: %w", encounterID, ErrConflict)
		}
		return nil, fmt.Errorf("failed to create encounter: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &domain.Encounter{
		ID:          id,
		EncounterID: encounterID,
		StartedAt:   startedAt,
		IsActive:    true,
	}, nil
}

func (r *EncounterRepository) End(ctx context.Context, encounterID string, endedAt time.Time, durationMs int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE encounters SET is_active = 0, ended_at = ?, duration_ms = ? WHERE encounter_id = ?`,
		endedAt, durationMs, encounterID)
	if err != nil {
		return fmt.Errorf("failed to end encounter: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("encounter %s: %w", encounterID, ErrNotFound)
	}
	return nil
}

// UpsertStats writes one player's totals for the given encounter. The
// UNIQUE(player_uid, encounter_id) constraint turns repeated checkpoint
// saves into in-place updates.
func (r *EncounterRepository) UpsertStats(ctx context.Context, encounterID string, stats *domain.PlayerEncounterStats) error {
	var rowID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM encounters WHERE encounter_id = ?`, encounterID).Scan(&rowID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("encounter %s: %w", encounterID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve encounter: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO player_encounter_stats (
			player_uid, encounter_id, total_attack_damage, total_taken_damage,
			total_heal, start_logged_tick, last_logged_tick, is_npc_data,
			skill_data_json, combat_power_snapshot, level_snapshot, name_snapshot
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(player_uid, encounter_id) DO UPDATE SET
			total_attack_damage = excluded.total_attack_damage,
			total_taken_damage = excluded.total_taken_damage,
			total_heal = excluded.total_heal,
			start_logged_tick = excluded.start_logged_tick,
			last_logged_tick = excluded.last_logged_tick,
			is_npc_data = excluded.is_npc_data,
			skill_data_json = excluded.skill_data_json,
			combat_power_snapshot = excluded.combat_power_snapshot,
			level_snapshot = excluded.level_snapshot,
			name_snapshot = excluded.name_snapshot`,
		stats.PlayerUID, rowID, stats.TotalAttackDamage, stats.TotalTakenDamage,
		stats.TotalHeal, stats.StartLoggedTick, stats.LastLoggedTick, stats.IsNPCData,
		stats.SkillDataJSON, stats.CombatPowerSnapshot, stats.LevelSnapshot, stats.NameSnapshot)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("player %d: %w", stats.PlayerUID, ErrNotFound)
		}
		return fmt.Errorf("failed to upsert player stats: %w", err)
	}
	return nil
}

func (r *EncounterRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM encounters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count encounters: %w", err)
	}
	return n, nil
}

func (r *EncounterRepository) ListRecent(ctx context.Context, limit int) ([]domain.EncounterSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.encounter_id, e.started_at, e.duration_ms, e.is_active,
			COUNT(s.id) AS player_count
		 FROM encounters e
		 LEFT JOIN player_encounter_stats s ON s.encounter_id = e.id
		 GROUP BY e.id
		 ORDER BY e.started_at DESC, e.id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list encounters: %w", err)
	}
	defer rows.Close()

	summaries := []domain.EncounterSummary{}
	for rows.Next() {
		var s domain.EncounterSummary
		if err := rows.Scan(&s.EncounterID, &s.StartedAt, &s.DurationMs, &s.IsActive, &s.PlayerCount); err != nil {
			return nil, fmt.Errorf("failed to scan encounter summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func (r *EncounterRepository) Load(ctx context.Context, encounterID string) (*domain.EncounterData, error) {
	var enc domain.Encounter
	var endedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, encounter_id, started_at, ended_at, duration_ms, is_active
		 FROM encounters WHERE encounter_id = ?`, encounterID).
		Scan(&enc.ID, &enc.EncounterID, &enc.StartedAt, &endedAt, &enc.DurationMs, &enc.IsActive)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("encounter %s: %w", encounterID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load encounter: %w", err)
	}
	if endedAt.Valid {
		enc.EndedAt = &endedAt.Time
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.player_uid, s.encounter_id, s.total_attack_damage,
			s.total_taken_damage, s.total_heal, s.start_logged_tick,
			s.last_logged_tick, s.is_npc_data, s.skill_data_json,
			s.combat_power_snapshot, s.level_snapshot, s.name_snapshot,
			p.uid, p.name, p.profession_id, p.sub_profession, p.spec, p.class,
			p.combat_power, p.level, p.rank_level, p.critical, p.lucky,
			p.max_hp, p.first_seen_at, p.last_seen_at, p.is_npc
		 FROM player_encounter_stats s
		 JOIN players p ON p.uid = s.player_uid
		 WHERE s.encounter_id = ?
		 ORDER BY s.total_attack_damage DESC`, enc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load encounter stats: %w", err)
	}
	defer rows.Close()

	data := &domain.EncounterData{Encounter: enc}
	for rows.Next() {
		var pd domain.PlayerEncounterData
		var skillData sql.NullString
		err := rows.Scan(
			&pd.Stats.ID, &pd.Stats.PlayerUID, &pd.Stats.EncounterID,
			&pd.Stats.TotalAttackDamage, &pd.Stats.TotalTakenDamage,
			&pd.Stats.TotalHeal, &pd.Stats.StartLoggedTick, &pd.Stats.LastLoggedTick,
			&pd.Stats.IsNPCData, &skillData, &pd.Stats.CombatPowerSnapshot,
			&pd.Stats.LevelSnapshot, &pd.Stats.NameSnapshot,
			&pd.Player.UID, &pd.Player.Name, &pd.Player.ProfessionID,
			&pd.Player.SubProfession, &pd.Player.Spec, &pd.Player.Class,
			&pd.Player.CombatPower, &pd.Player.Level, &pd.Player.RankLevel,
			&pd.Player.Critical, &pd.Player.Lucky, &pd.Player.MaxHP,
			&pd.Player.FirstSeenAt, &pd.Player.LastSeenAt, &pd.Player.IsNPC)
		if err != nil {
			return nil, fmt.Errorf("failed to scan encounter player: %w", err)
		}
		pd.Stats.SkillDataJSON = skillData.String
		data.Players = append(data.Players, pd)
	}
	return data, rows.Err()
}

// DeleteOld retains the keepCount most recently started encounters and
// removes the rest. Stats rows follow via ON DELETE CASCADE; the whole
// batch commits or rolls back as one transaction.
func (r *EncounterRepository) DeleteOld(ctx context.Context, keepCount int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM encounters WHERE id NOT IN (
			SELECT id FROM encounters ORDER BY started_at DESC, id DESC LIMIT ?
		)`, keepCount)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old encounters: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup: %w", err)
	}

	if n > 0 {
		r.logger.Info().Int64("deleted", n).Int("keep_count", keepCount).Msg("old encounters removed")
	}
	return n, nil
}
