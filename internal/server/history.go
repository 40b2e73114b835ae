package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"encounter-tracker/internal/bridge"
	"encounter-tracker/internal/config"
	"encounter-tracker/internal/database"
	"encounter-tracker/internal/domain"
	"encounter-tracker/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HistoryServer exposes the encounter history and the manual lifecycle
// overrides over a small JSON API.
type HistoryServer struct {
	bridge *bridge.Bridge
	cfg    *config.Config
	logger zerolog.Logger
}

func NewHistoryServer(b *bridge.Bridge, cfg *config.Config, logger zerolog.Logger) *HistoryServer {
	return &HistoryServer{bridge: b, cfg: cfg, logger: logger}
}

func (s *HistoryServer) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/encounters", s.handleListEncounters)
	mux.HandleFunc("GET /api/encounters/{id}", s.handleGetEncounter)
	mux.HandleFunc("GET /api/players/{uid}", s.handleGetPlayer)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/encounters/start", s.handleStart)
	mux.HandleFunc("POST /api/encounters/end", s.handleEnd)
	mux.HandleFunc("POST /api/encounters/save", s.handleSave)
	mux.HandleFunc("POST /api/encounters/cleanup", s.handleCleanup)
}

type encounterSummaryResponse struct {
	EncounterID string    `json:"encounter_id"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	IsActive    bool      `json:"is_active"`
	PlayerCount int       `json:"player_count"`
}

type playerResponse struct {
	UID           int64     `json:"uid"`
	Name          string    `json:"name"`
	ProfessionID  int       `json:"profession_id"`
	SubProfession string    `json:"sub_profession"`
	CombatPower   int       `json:"combat_power"`
	Level         int       `json:"level"`
	RankLevel     int       `json:"rank_level"`
	MaxHP         int64     `json:"max_hp"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	IsNPC         bool      `json:"is_npc"`
}

type encounterPlayerResponse struct {
	Player            playerResponse  `json:"player"`
	TotalAttackDamage int64           `json:"total_attack_damage"`
	TotalTakenDamage  int64           `json:"total_taken_damage"`
	TotalHeal         int64           `json:"total_heal"`
	NameSnapshot      string          `json:"name_snapshot"`
	LevelSnapshot     int             `json:"level_snapshot"`
	CombatPower       int             `json:"combat_power_snapshot"`
	SkillData         json.RawMessage `json:"skill_data,omitempty"`
}

type encounterDetailResponse struct {
	EncounterID string                    `json:"encounter_id"`
	StartedAt   time.Time                 `json:"started_at"`
	EndedAt     *time.Time                `json:"ended_at,omitempty"`
	DurationMs  int64                     `json:"duration_ms"`
	IsActive    bool                      `json:"is_active"`
	Players     []encounterPlayerResponse `json:"players"`
}

type statusResponse struct {
	DatabaseSizeBytes int64 `json:"database_size_bytes"`
	EncounterCount    int   `json:"encounter_count"`
}

func (s *HistoryServer) handleListEncounters(w http.ResponseWriter, r *http.Request) {
	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	summaries, err := s.bridge.ListRecentEncounters(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]encounterSummaryResponse, len(summaries))
	for i, sum := range summaries {
		out[i] = encounterSummaryResponse{
			EncounterID: sum.EncounterID,
			StartedAt:   sum.StartedAt,
			DurationMs:  sum.DurationMs,
			IsActive:    sum.IsActive,
			PlayerCount: sum.PlayerCount,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *HistoryServer) handleGetEncounter(w http.ResponseWriter, r *http.Request) {
	data, err := s.bridge.LoadEncounter(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := encounterDetailResponse{
		EncounterID: data.Encounter.EncounterID,
		StartedAt:   data.Encounter.StartedAt,
		EndedAt:     data.Encounter.EndedAt,
		DurationMs:  data.Encounter.DurationMs,
		IsActive:    data.Encounter.IsActive,
		Players:     make([]encounterPlayerResponse, len(data.Players)),
	}
	for i, pd := range data.Players {
		pr := encounterPlayerResponse{
			Player:            toPlayerResponse(&pd.Player),
			TotalAttackDamage: pd.Stats.TotalAttackDamage,
			TotalTakenDamage:  pd.Stats.TotalTakenDamage,
			TotalHeal:         pd.Stats.TotalHeal,
			NameSnapshot:      pd.Stats.NameSnapshot,
			LevelSnapshot:     pd.Stats.LevelSnapshot,
			CombatPower:       pd.Stats.CombatPowerSnapshot,
		}
		if pd.Stats.SkillDataJSON != "" {
			pr.SkillData = json.RawMessage(pd.Stats.SkillDataJSON)
		}
		resp.Players[i] = pr
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HistoryServer) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	uid, err := strconv.ParseInt(r.PathValue("uid"), 10, 64)
	if err != nil {
		http.Error(w, "invalid uid", http.StatusBadRequest)
		return
	}

	player, err := s.bridge.GetCachedPlayer(r.Context(), uid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPlayerResponse(player))
}

func (s *HistoryServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	g, ctx := errgroup.WithContext(r.Context())

	var size int64
	var count int

	g.Go(func() error {
		size = database.SizeInBytes(s.cfg.DBPath)
		return nil
	})
	g.Go(func() error {
		var err error
		count, err = s.bridge.CountEncounters(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{DatabaseSizeBytes: size, EncounterCount: count})
}

func (s *HistoryServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.bridge.StartEncounter(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HistoryServer) handleEnd(w http.ResponseWriter, r *http.Request) {
	var durationMs int64
	if raw := r.URL.Query().Get("duration_ms"); raw != "" {
		var err error
		durationMs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid duration_ms", http.StatusBadRequest)
			return
		}
	}
	s.bridge.EndEncounter(r.Context(), durationMs)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HistoryServer) handleSave(w http.ResponseWriter, r *http.Request) {
	s.bridge.SaveCurrentEncounter(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *HistoryServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var keepCount int
	if raw := r.URL.Query().Get("keep"); raw != "" {
		var err error
		keepCount, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid keep", http.StatusBadRequest)
			return
		}
	}

	deleted, err := s.bridge.CleanupOldEncounters(r.Context(), keepCount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func toPlayerResponse(p *domain.Player) playerResponse {
	return playerResponse{
		UID:           p.UID,
		Name:          p.Name,
		ProfessionID:  p.ProfessionID,
		SubProfession: p.SubProfession,
		CombatPower:   p.CombatPower,
		Level:         p.Level,
		RankLevel:     p.RankLevel,
		MaxHP:         p.MaxHP,
		FirstSeenAt:   p.FirstSeenAt,
		LastSeenAt:    p.LastSeenAt,
		IsNPC:         p.IsNPC,
	}
}

func (s *HistoryServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *HistoryServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrInvalidInput):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "timeout", http.StatusGatewayTimeout)
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
