package telemetry

import (
	"sync"
	"time"

	"encounter-tracker/internal/constants"
	"encounter-tracker/internal/domain"
)

// Feed is the in-process Source implementation. The capture layer pushes
// section boundaries, connection changes, and player updates into it;
// subscribers receive them synchronously on the publisher's goroutine.
// All methods are safe for concurrent use.
type Feed struct {
	mu             sync.RWMutex
	nextID         int
	sectionSubs    map[int]func()
	connectionSubs map[int]func(bool)
	playerSubs     map[int]func(domain.PlayerSnapshot)

	sectionTimeout time.Duration

	players map[int64]domain.PlayerSnapshot
	stats   map[int64]domain.StatsSnapshot
}

func NewFeed() *Feed {
	return &Feed{
		sectionSubs:    make(map[int]func()),
		connectionSubs: make(map[int]func(bool)),
		playerSubs:     make(map[int]func(domain.PlayerSnapshot)),
		sectionTimeout: constants.DefaultSectionTimeout,
		players:        make(map[int64]domain.PlayerSnapshot),
		stats:          make(map[int64]domain.StatsSnapshot),
	}
}

func (f *Feed) OnSectionBoundary(fn func()) Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.sectionSubs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.sectionSubs, id)
	}
}

func (f *Feed) OnConnectionStateChanged(fn func(bool)) Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.connectionSubs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.connectionSubs, id)
	}
}

func (f *Feed) OnPlayerInfoUpdated(fn func(domain.PlayerSnapshot)) Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.playerSubs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.playerSubs, id)
	}
}

func (f *Feed) SectionTimeout() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sectionTimeout
}

func (f *Feed) SetSectionTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sectionTimeout = d
}

func (f *Feed) PlayerSnapshots() map[int64]domain.PlayerSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[int64]domain.PlayerSnapshot, len(f.players))
	for uid, p := range f.players {
		out[uid] = p
	}
	return out
}

func (f *Feed) StatsSnapshots() map[int64]domain.StatsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[int64]domain.StatsSnapshot, len(f.stats))
	for uid, s := range f.stats {
		out[uid] = s
	}
	return out
}

// PublishSectionBoundary notifies subscribers that a new combat window
// began. Stats aggregates are left untouched so the closing encounter's
// final save still sees them; the aggregation layer resets them via
// ResetStats when it starts the new section.
func (f *Feed) PublishSectionBoundary() {
	f.mu.RLock()
	subs := make([]func(), 0, len(f.sectionSubs))
	for _, fn := range f.sectionSubs {
		subs = append(subs, fn)
	}
	f.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}

func (f *Feed) PublishConnectionState(connected bool) {
	f.mu.RLock()
	subs := make([]func(bool), 0, len(f.connectionSubs))
	for _, fn := range f.connectionSubs {
		subs = append(subs, fn)
	}
	f.mu.RUnlock()

	for _, fn := range subs {
		fn(connected)
	}
}

// PublishPlayerUpdate records the snapshot in the roster and notifies
// subscribers.
func (f *Feed) PublishPlayerUpdate(snapshot domain.PlayerSnapshot) {
	f.mu.Lock()
	f.players[snapshot.UID] = snapshot
	subs := make([]func(domain.PlayerSnapshot), 0, len(f.playerSubs))
	for _, fn := range f.playerSubs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// RecordStats replaces a player's aggregated totals for the current
// section. The aggregation layer calls this as damage events land.
func (f *Feed) RecordStats(uid int64, stats domain.StatsSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats[uid] = stats
}

// ResetStats drops all sectioned aggregates, called by the aggregation
// layer when a new combat window opens.
func (f *Feed) ResetStats() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = make(map[int64]domain.StatsSnapshot)
}
