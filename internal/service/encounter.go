package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"encounter-tracker/internal/constants"
	"encounter-tracker/internal/domain"
	"encounter-tracker/internal/repository"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// EncounterService owns the encounter lifecycle: at most one active
// encounter at a time, upsert-only checkpoint writes, and the player
// identity cache. All state transitions happen under s.mu so concurrent
// start/end signals from the bridge cannot produce two active rows.
type EncounterService struct {
	encounterRepo *repository.EncounterRepository
	playerRepo    *repository.PlayerRepository
	logger        zerolog.Logger

	mu       sync.Mutex
	activeID string
}

func NewEncounterService(encounterRepo *repository.EncounterRepository, playerRepo *repository.PlayerRepository, logger zerolog.Logger) *EncounterService {
	return &EncounterService{
		encounterRepo: encounterRepo,
		playerRepo:    playerRepo,
		logger:        logger,
	}
}

// IsActive reports whether an encounter is currently open.
func (s *EncounterService) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID != ""
}

// ActiveEncounterID returns the open encounter's id, empty when none.
func (s *EncounterService) ActiveEncounterID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Start opens a new encounter. A call while one is already active is a
// silent no-op; duplicate start signals from the bridge are expected.
func (s *EncounterService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID != "" {
		s.logger.Debug().Str("encounter_id", s.activeID).Msg("encounter already active, start ignored")
		return nil
	}

	encounterID := newEncounterID()
	enc, err := s.encounterRepo.Create(ctx, encounterID, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// A racing start won the insert. Lose quietly.
			s.logger.Warn().Str("encounter_id", encounterID).Msg("duplicate encounter id, start ignored")
			return nil
		}
		return fmt.Errorf("failed to start encounter: %w", err)
	}

	s.activeID = enc.EncounterID
	s.logger.Info().Str("encounter_id", enc.EncounterID).Msg("encounter started")
	return nil
}

// SaveStats checkpoints the current in-memory aggregates into the active
// encounter. A call with no active encounter is a no-op. Per-row
// repository failures are logged and skipped; a failed checkpoint never
// moves the state machine, the next checkpoint retries with fresh data.
func (s *EncounterService) SaveStats(ctx context.Context, players map[int64]domain.PlayerSnapshot, stats map[int64]domain.StatsSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveStatsLocked(ctx, players, stats)
}

func (s *EncounterService) saveStatsLocked(ctx context.Context, players map[int64]domain.PlayerSnapshot, stats map[int64]domain.StatsSnapshot) {
	if s.activeID == "" {
		return
	}

	now := time.Now()
	saved := 0
	for uid, st := range stats {
		snapshot, ok := players[uid]
		if !ok {
			// Stats can arrive before the first player-info packet.
			snapshot = domain.PlayerSnapshot{UID: uid, IsNPC: st.IsNPCData}
		}

		if err := s.playerRepo.Upsert(ctx, &snapshot, now); err != nil {
			s.logger.Error().Err(err).Int64("uid", uid).Msg("failed to upsert player during checkpoint")
			continue
		}

		row := statsRow(&snapshot, &st)
		if err := s.encounterRepo.UpsertStats(ctx, s.activeID, row); err != nil {
			s.logger.Error().Err(err).Int64("uid", uid).Str("encounter_id", s.activeID).
				Msg("failed to upsert player stats during checkpoint")
			continue
		}
		saved++
	}

	// Keep cache rows fresh for players seen without combat activity.
	for uid, snapshot := range players {
		if _, ok := stats[uid]; ok {
			continue
		}
		if err := s.playerRepo.Upsert(ctx, &snapshot, now); err != nil {
			s.logger.Error().Err(err).Int64("uid", uid).Msg("failed to refresh player cache during checkpoint")
		}
	}

	s.logger.Debug().Str("encounter_id", s.activeID).Int("players", saved).Msg("checkpoint saved")
}

// End closes the active encounter. A call with no active encounter is a
// no-op. If the close write fails the in-memory state stays active so a
// later signal (or the startup recovery pass) can repair the row.
func (s *EncounterService) End(ctx context.Context, durationMs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeID == "" {
		return
	}

	err := s.encounterRepo.End(ctx, s.activeID, time.Now(), durationMs)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error().Err(err).Str("encounter_id", s.activeID).Msg("failed to close encounter")
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn().Str("encounter_id", s.activeID).Msg("active encounter row missing at close")
	}

	s.logger.Info().Str("encounter_id", s.activeID).Int64("duration_ms", durationMs).Msg("encounter ended")
	s.activeID = ""
}

// UpdatePlayerCache upserts a single player's identity row, no stats.
// Valid in either lifecycle state; used to fix "Unknown" names from
// later observations.
func (s *EncounterService) UpdatePlayerCache(ctx context.Context, snapshot *domain.PlayerSnapshot) error {
	return s.playerRepo.Upsert(ctx, snapshot, time.Now())
}

// GetCachedPlayer resolves a UID against the historical player cache.
func (s *EncounterService) GetCachedPlayer(ctx context.Context, uid int64) (*domain.Player, error) {
	return s.playerRepo.Get(ctx, uid)
}

func (s *EncounterService) ListRecent(ctx context.Context, count int) ([]domain.EncounterSummary, error) {
	if count <= 0 {
		count = constants.DefaultHistoryLimit
	}
	return s.encounterRepo.ListRecent(ctx, count)
}

func (s *EncounterService) Load(ctx context.Context, encounterID string) (*domain.EncounterData, error) {
	return s.encounterRepo.Load(ctx, encounterID)
}

func (s *EncounterService) CountEncounters(ctx context.Context) (int, error) {
	return s.encounterRepo.Count(ctx)
}

// Cleanup trims history down to the keepCount most recent encounters.
// Failures are non-fatal to the caller's lifecycle; a later run retries.
func (s *EncounterService) Cleanup(ctx context.Context, keepCount int) (int64, error) {
	if keepCount <= 0 {
		keepCount = constants.DefaultKeepCount
	}
	n, err := s.encounterRepo.DeleteOld(ctx, keepCount)
	if err != nil {
		s.logger.Error().Err(err).Int("keep_count", keepCount).Msg("encounter cleanup failed")
		return 0, err
	}
	return n, nil
}

func statsRow(snapshot *domain.PlayerSnapshot, st *domain.StatsSnapshot) *domain.PlayerEncounterStats {
	row := &domain.PlayerEncounterStats{
		PlayerUID:           snapshot.UID,
		TotalAttackDamage:   st.TotalAttackDamage,
		TotalTakenDamage:    st.TotalTakenDamage,
		TotalHeal:           st.TotalHeal,
		StartLoggedTick:     st.StartLoggedTick,
		LastLoggedTick:      st.LastLoggedTick,
		IsNPCData:           st.IsNPCData,
		CombatPowerSnapshot: snapshot.CombatPower,
		LevelSnapshot:       snapshot.Level,
		NameSnapshot:        snapshot.Name,
	}

	if len(st.Skills) > 0 {
		if data, err := json.Marshal(st.Skills); err == nil {
			row.SkillDataJSON = string(data)
		}
	}
	return row
}

// newEncounterID builds a time-prefixed, nanoid-suffixed id. The time
// prefix keeps ids sortable and human-readable; the suffix makes a
// same-second race collision-resistant.
func newEncounterID() string {
	suffix, err := gonanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 8)
	if err != nil {
		suffix = fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), suffix)
}
