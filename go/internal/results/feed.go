package results

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// FeedConfig configures the periodic leaderboard refresh.
type FeedConfig struct {
	Interval time.Duration
	View     View
}

// DefaultFeedConfig refreshes every 10 seconds.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Interval: 10 * time.Second,
		View:     DefaultView(),
	}
}

// Feed periodically rebuilds snapshots for watched races and fans them out to
// subscribers. A cache invalidation triggers an immediate rebuild.
type Feed struct {
	cache  *Cache
	clock  clockwork.Clock
	config FeedConfig

	mu      sync.Mutex
	watched map[uuid.UUID]int
	subs    map[int]chan Snapshot
	nextSub int
}

// NewFeed creates a feed over cache.
func NewFeed(cache *Cache, clock clockwork.Clock, cfg FeedConfig) *Feed {
	return &Feed{
		cache:   cache,
		clock:   clock,
		config:  cfg,
		watched: make(map[uuid.UUID]int),
		subs:    make(map[int]chan Snapshot),
	}
}

// Watch adds a race to the refresh set. Calls are reference counted.
func (f *Feed) Watch(raceID uuid.UUID) {
	f.mu.Lock()
	f.watched[raceID]++
	f.mu.Unlock()
}

// Unwatch drops one reference to a race.
func (f *Feed) Unwatch(raceID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watched[raceID] <= 1 {
		delete(f.watched, raceID)
		return
	}
	f.watched[raceID]--
}

// Subscribe returns a channel of snapshots and a cancel func.
func (f *Feed) Subscribe() (<-chan Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextSub
	f.nextSub++
	ch := make(chan Snapshot, 16)
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}
}

// Current builds the snapshot for one race from the cache without
// publishing it.
func (f *Feed) Current(ctx context.Context, raceID uuid.UUID) (Snapshot, error) {
	data, err := f.cache.Load(ctx, raceID)
	if err != nil {
		return Snapshot{}, err
	}
	return Build(data, f.config.View, f.clock.Now()), nil
}

// Refresh rebuilds and publishes the snapshot for one race.
func (f *Feed) Refresh(ctx context.Context, raceID uuid.UUID) (Snapshot, error) {
	snap, err := f.Current(ctx, raceID)
	if err != nil {
		return Snapshot{}, err
	}
	if len(snap.Anomalies) > 0 {
		log.Warn().
			Str("race_id", raceID.String()).
			Int("anomalies", len(snap.Anomalies)).
			Msg("finish recorded before race start")
	}
	f.publish(snap)
	return snap, nil
}

func (f *Feed) publish(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			log.Warn().Int("subscriber", id).Msg("snapshot subscriber slow, dropping update")
		}
	}
}

func (f *Feed) watchedRaces() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(f.watched))
	for id := range f.watched {
		ids = append(ids, id)
	}
	return ids
}

func (f *Feed) isWatched(raceID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watched[raceID] > 0
}

// Run refreshes watched races on every tick and on invalidation until ctx
// is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	ticker := f.clock.NewTicker(f.config.Interval)
	defer ticker.Stop()

	log.Info().Dur("interval", f.config.Interval).Msg("results feed started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("results feed shutting down")
			return nil
		case raceID := <-f.cache.Invalidated():
			if !f.isWatched(raceID) {
				continue
			}
			if _, err := f.Refresh(ctx, raceID); err != nil {
				log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to refresh invalidated race")
			}
		case <-ticker.Chan():
			for _, raceID := range f.watchedRaces() {
				f.cache.markStale(raceID)
				if _, err := f.Refresh(ctx, raceID); err != nil {
					log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to refresh race")
				}
			}
		}
	}
}
