package results

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/raceday/go/internal/models"
)

// Loader is what the cache needs from the record store.
type Loader interface {
	GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error)
	GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error)
}

type cacheEntry struct {
	data  RaceData
	stale bool
}

// Cache holds the last read of each race. Entries are served until they are
// invalidated by a confirmed write or exceed maxAge, so readers always see
// their own acknowledged writes.
type Cache struct {
	loader Loader
	clock  clockwork.Clock
	maxAge time.Duration

	mu      sync.Mutex
	entries map[uuid.UUID]*cacheEntry
	// bumped by every invalidation; a read that spans one is stored stale
	gens map[uuid.UUID]uint64

	invalidated chan uuid.UUID
}

// NewCache creates a cache. maxAge <= 0 disables age-based expiry.
func NewCache(loader Loader, clock clockwork.Clock, maxAge time.Duration) *Cache {
	return &Cache{
		loader:      loader,
		clock:       clock,
		maxAge:      maxAge,
		entries:     make(map[uuid.UUID]*cacheEntry),
		gens:        make(map[uuid.UUID]uint64),
		invalidated: make(chan uuid.UUID, 64),
	}
}

// Load returns the cached race data or re-reads it from the loader.
func (c *Cache) Load(ctx context.Context, raceID uuid.UUID) (RaceData, error) {
	c.mu.Lock()
	if e, ok := c.entries[raceID]; ok && !e.stale && !c.expired(e) {
		data := e.data
		c.mu.Unlock()
		return data, nil
	}
	gen := c.gens[raceID]
	c.mu.Unlock()

	race, err := c.loader.GetRace(ctx, raceID)
	if err != nil {
		return RaceData{}, fmt.Errorf("failed to load race: %w", err)
	}
	entries, err := c.loader.GetRaceParticipants(ctx, raceID)
	if err != nil {
		return RaceData{}, fmt.Errorf("failed to load race participants: %w", err)
	}

	data := RaceData{Race: *race, Entries: entries, FetchedAt: c.clock.Now()}
	c.mu.Lock()
	c.entries[raceID] = &cacheEntry{data: data, stale: c.gens[raceID] != gen}
	c.mu.Unlock()
	return data, nil
}

func (c *Cache) expired(e *cacheEntry) bool {
	return c.maxAge > 0 && c.clock.Since(e.data.FetchedAt) >= c.maxAge
}

// Invalidate marks a race stale and signals listeners without blocking.
func (c *Cache) Invalidate(raceID uuid.UUID) {
	c.markStale(raceID)

	select {
	case c.invalidated <- raceID:
	default:
	}
}

// Invalidated delivers race IDs passed to Invalidate.
func (c *Cache) Invalidated() <-chan uuid.UUID {
	return c.invalidated
}

func (c *Cache) markStale(raceID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[raceID]++
	if e, ok := c.entries[raceID]; ok {
		e.stale = true
	}
}
