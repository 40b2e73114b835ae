package telemetry

import (
	"time"

	"encounter-tracker/internal/domain"
)

// Unsubscribe removes a previously registered handler. Safe to call more
// than once.
type Unsubscribe func()

// Source is the narrow view of the live telemetry layer consumed by the
// synchronization bridge. Handlers may be invoked concurrently and in no
// particular order relative to each other; they must not block the
// source's dispatch path.
type Source interface {
	// OnSectionBoundary fires when the source decides a new combat
	// window began.
	OnSectionBoundary(fn func()) Unsubscribe

	// OnConnectionStateChanged fires with the new connected state.
	OnConnectionStateChanged(fn func(connected bool)) Unsubscribe

	// OnPlayerInfoUpdated fires with a single refreshed player snapshot.
	OnPlayerInfoUpdated(fn func(snapshot domain.PlayerSnapshot)) Unsubscribe

	// SectionTimeout is the configured section idle window, used as the
	// elapsed time when a section boundary closes an encounter.
	SectionTimeout() time.Duration

	// PlayerSnapshots returns the current player roster, pulled
	// synchronously at checkpoint time.
	PlayerSnapshots() map[int64]domain.PlayerSnapshot

	// StatsSnapshots returns the current per-player aggregated combat
	// totals, pulled synchronously at checkpoint time.
	StatsSnapshots() map[int64]domain.StatsSnapshot
}
