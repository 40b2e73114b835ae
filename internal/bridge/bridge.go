package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"encounter-tracker/internal/config"
	"encounter-tracker/internal/constants"
	"encounter-tracker/internal/domain"
	"encounter-tracker/internal/repository"
	"encounter-tracker/internal/service"
	"encounter-tracker/internal/telemetry"

	"github.com/rs/zerolog"
)

// Bridge translates the telemetry source's fire-and-forget notifications
// into encounter service calls. It owns the checkpoint throttle and the
// subscription lifecycle; nothing it does may propagate back into the
// source's dispatch path.
type Bridge struct {
	svc          *service.EncounterService
	source       telemetry.Source
	logger       zerolog.Logger
	saveInterval time.Duration

	mu          sync.Mutex
	initialized bool
	unsubs      []telemetry.Unsubscribe
	lastSave    time.Time

	handlers sync.WaitGroup
}

func New(svc *service.EncounterService, source telemetry.Source, cfg *config.Config, logger zerolog.Logger) *Bridge {
	interval := cfg.SaveInterval
	if interval <= 0 {
		interval = constants.MinSaveInterval
	}
	return &Bridge{
		svc:          svc,
		source:       source,
		logger:       logger,
		saveInterval: interval,
	}
}

// Initialize subscribes to the telemetry source. Calling it again while
// initialized is a no-op.
func (b *Bridge) Initialize() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return
	}

	b.unsubs = []telemetry.Unsubscribe{
		b.source.OnSectionBoundary(func() {
			b.dispatch("section_boundary", b.handleSectionBoundary)
		}),
		b.source.OnConnectionStateChanged(func(connected bool) {
			b.dispatch("connection_state", func(ctx context.Context) {
				b.handleConnectionState(ctx, connected)
			})
		}),
		b.source.OnPlayerInfoUpdated(func(snapshot domain.PlayerSnapshot) {
			b.dispatch("player_updated", func(ctx context.Context) {
				b.handlePlayerUpdated(ctx, snapshot)
			})
		}),
	}

	b.initialized = true
	b.logger.Info().Dur("save_interval", b.saveInterval).Msg("bridge initialized")
}

// Shutdown unsubscribes from the telemetry source, waits for in-flight
// handlers, and turns further bridge calls into no-ops. Idempotent.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return
	}
	unsubs := b.unsubs
	b.unsubs = nil
	b.initialized = false
	b.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	b.handlers.Wait()
	b.logger.Info().Msg("bridge shut down")
}

// dispatch runs a handler on its own goroutine so a slow store operation
// never blocks the telemetry dispatch path. Panics and errors stay inside
// the handler; the source must never see them.
func (b *Bridge) dispatch(name string, fn func(context.Context)) {
	b.mu.Lock()
	if !b.initialized {
		b.mu.Unlock()
		return
	}
	b.handlers.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.handlers.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error().Interface("panic", r).Str("event", name).Msg("telemetry handler panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), constants.RequestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// handleSectionBoundary closes the running encounter with the source's
// section timeout as the elapsed time, then opens the next one.
func (b *Bridge) handleSectionBoundary(ctx context.Context) {
	if b.svc.IsActive() {
		b.saveNow(ctx)
		b.svc.End(ctx, b.source.SectionTimeout().Milliseconds())
	}

	if err := b.svc.Start(ctx); err != nil {
		b.logger.Error().Err(err).Msg("failed to start encounter on section boundary")
	}
}

func (b *Bridge) handleConnectionState(ctx context.Context, connected bool) {
	if connected {
		if err := b.svc.Start(ctx); err != nil {
			b.logger.Error().Err(err).Msg("failed to start encounter on connect")
		}
		return
	}

	// Elapsed time is unknowable at disconnect.
	if b.svc.IsActive() {
		b.saveNow(ctx)
		b.svc.End(ctx, 0)
	}
}

func (b *Bridge) handlePlayerUpdated(ctx context.Context, snapshot domain.PlayerSnapshot) {
	if err := b.svc.UpdatePlayerCache(ctx, &snapshot); err != nil {
		b.logger.Error().Err(err).Int64("uid", snapshot.UID).Msg("failed to update player cache")
	}

	// Piggyback the periodic checkpoint on the player-update stream so
	// stats stay near real time without a dedicated timer.
	b.saveThrottled(ctx)
}

// saveThrottled executes a checkpoint only when the minimum interval has
// elapsed since the last executed one. Calls inside the window are
// dropped, not queued.
func (b *Bridge) saveThrottled(ctx context.Context) {
	if !b.svc.IsActive() {
		return
	}

	b.mu.Lock()
	if time.Since(b.lastSave) < b.saveInterval {
		b.mu.Unlock()
		return
	}
	b.lastSave = time.Now()
	b.mu.Unlock()

	b.svc.SaveStats(ctx, b.source.PlayerSnapshots(), b.source.StatsSnapshots())
}

// saveNow bypasses the throttle for final saves on encounter close.
func (b *Bridge) saveNow(ctx context.Context) {
	if !b.svc.IsActive() {
		return
	}

	b.mu.Lock()
	b.lastSave = time.Now()
	b.mu.Unlock()

	b.svc.SaveStats(ctx, b.source.PlayerSnapshots(), b.source.StatsSnapshots())
}

// Manual lifecycle overrides, exposed to UI or CLI callers. No-ops after
// Shutdown.

func (b *Bridge) StartEncounter(ctx context.Context) error {
	if !b.isInitialized() {
		return nil
	}
	return b.svc.Start(ctx)
}

func (b *Bridge) EndEncounter(ctx context.Context, durationMs int64) {
	if !b.isInitialized() {
		return
	}
	b.saveNow(ctx)
	b.svc.End(ctx, durationMs)
}

func (b *Bridge) SaveCurrentEncounter(ctx context.Context) {
	if !b.isInitialized() {
		return
	}
	b.saveThrottled(ctx)
}

func (b *Bridge) ListRecentEncounters(ctx context.Context, count int) ([]domain.EncounterSummary, error) {
	if !b.isInitialized() {
		return []domain.EncounterSummary{}, nil
	}
	return b.svc.ListRecent(ctx, count)
}

func (b *Bridge) LoadEncounter(ctx context.Context, encounterID string) (*domain.EncounterData, error) {
	if !b.isInitialized() {
		return nil, fmt.Errorf("encounter %s: %w", encounterID, repository.ErrNotFound)
	}
	return b.svc.Load(ctx, encounterID)
}

func (b *Bridge) GetCachedPlayer(ctx context.Context, uid int64) (*domain.Player, error) {
	if !b.isInitialized() {
		return nil, fmt.Errorf("player %d: %w", uid, repository.ErrNotFound)
	}
	return b.svc.GetCachedPlayer(ctx, uid)
}

func (b *Bridge) CountEncounters(ctx context.Context) (int, error) {
	if !b.isInitialized() {
		return 0, nil
	}
	return b.svc.CountEncounters(ctx)
}

func (b *Bridge) CleanupOldEncounters(ctx context.Context, keepCount int) (int64, error) {
	if !b.isInitialized() {
		return 0, nil
	}
	return b.svc.Cleanup(ctx, keepCount)
}

func (b *Bridge) isInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}
