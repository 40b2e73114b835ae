package domain

import (
	"time"
)

// Player is the cached identity of a combatant, keyed by UID. The mutable
// fields track the latest observed snapshot; FirstSeenAt is set once.
type Player struct {
	UID           int64
	Name          string
	ProfessionID  int
	SubProfession string
	Spec          int
	Class         int
	CombatPower   int
	Level         int
	RankLevel     int
	Critical      int
	Lucky         int
	MaxHP         int64
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
	IsNPC         bool
}

// Encounter is one bounded combat session.
type Encounter struct {
	ID          int64
	EncounterID string
	StartedAt   time.Time
	EndedAt     *time.Time
	DurationMs  int64
	IsActive    bool
}

// PlayerEncounterStats is one player's totals within one encounter,
// unique per (PlayerUID, EncounterID). The *Snapshot fields capture the
// player's profile at save time so history survives later profile changes.
type PlayerEncounterStats struct {
	ID                  int64
	PlayerUID           int64
	EncounterID         int64
	TotalAttackDamage   int64
	TotalTakenDamage    int64
	TotalHeal           int64
	StartLoggedTick     int64
	LastLoggedTick      int64
	IsNPCData           bool
	SkillDataJSON       string
	CombatPowerSnapshot int
	LevelSnapshot       int
	NameSnapshot        string
}

// EncounterSummary is the history-list row shape.
type EncounterSummary struct {
	EncounterID string
	StartedAt   time.Time
	DurationMs  int64
	IsActive    bool
	PlayerCount int
}

// EncounterData is a fully hydrated encounter for the detail view.
type EncounterData struct {
	Encounter Encounter
	Players   []PlayerEncounterData
}

// PlayerEncounterData joins one stats row with its owning player's
// cached identity.
type PlayerEncounterData struct {
	Player Player
	Stats  PlayerEncounterStats
}

// PlayerSnapshot is what the telemetry source reports about a combatant
// on a player-info-updated notification.
type PlayerSnapshot struct {
	UID           int64
	Name          string
	ProfessionID  int
	SubProfession string
	Spec          int
	Class         int
	CombatPower   int
	Level         int
	RankLevel     int
	Critical      int
	Lucky         int
	MaxHP         int64
	IsNPC         bool
}

// StatsSnapshot is the aggregated per-player combat totals pulled from
// the telemetry source at checkpoint time.
type StatsSnapshot struct {
	TotalAttackDamage int64
	TotalTakenDamage  int64
	TotalHeal         int64
	StartLoggedTick   int64
	LastLoggedTick    int64
	IsNPCData         bool
	Skills            map[int32]SkillStat
}

// SkillStat is the per-skill breakdown serialized into the stats row.
type SkillStat struct {
	SkillID     int32 `json:"skill_id"`
	TotalDamage int64 `json:"total_damage"`
	HitCount    int   `json:"hit_count"`
	CritCount   int   `json:"crit_count"`
	LuckyCount  int   `json:"lucky_count"`
	MaxDamage   int64 `json:"max_damage"`
}
