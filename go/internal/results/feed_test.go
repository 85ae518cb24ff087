package results

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/raceday/go/internal/models"
)

type fakeLoader struct {
	mu      sync.Mutex
	race    models.Race
	entries []models.RaceParticipantView
	reads   int
}

func (l *fakeLoader) GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if raceID != l.race.ID {
		return nil, errors.New("not found")
	}
	r := l.race
	return &r, nil
}

func (l *fakeLoader) GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	out := make([]models.RaceParticipantView, len(l.entries))
	copy(out, l.entries)
	return out, nil
}

func (l *fakeLoader) addFinisher(bib int, finish time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := bib
	id := uuid.New()
	l.entries = append(l.entries, models.RaceParticipantView{
		ID:          id,
		RaceID:      l.race.ID,
		BibNumber:   &b,
		Participant: models.Participant{Gender: models.GenderMale},
		FinishTime:  &models.FinishTime{ID: uuid.New(), RaceParticipantID: id, FinishTime: finish},
	})
}

func (l *fakeLoader) readCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reads
}

func startedLoader() *fakeLoader {
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	return &fakeLoader{race: models.Race{ID: uuid.New(), Name: "Spring 10K", RaceDate: raceDate, StartTime: &start}}
}

func TestCacheServesUntilInvalidated(t *testing.T) {
	loader := startedLoader()
	clock := clockwork.NewFakeClock()
	cache := NewCache(loader, clock, time.Minute)
	ctx := context.Background()

	if _, err := cache.Load(ctx, loader.race.ID); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cache.Load(ctx, loader.race.ID); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loader.readCount() != 1 {
		t.Fatalf("second load should be cached, reads=%d", loader.readCount())
	}

	loader.addFinisher(4, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))
	cache.Invalidate(loader.race.ID)
	data, err := cache.Load(ctx, loader.race.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(data.Entries) != 1 || loader.readCount() != 2 {
		t.Fatalf("invalidated load must re-read, entries=%d reads=%d", len(data.Entries), loader.readCount())
	}
	select {
	case id := <-cache.Invalidated():
		if id != loader.race.ID {
			t.Fatalf("wrong invalidation id")
		}
	default:
		t.Fatalf("invalidation not signalled")
	}

	clock.Advance(time.Minute)
	if _, err := cache.Load(ctx, loader.race.ID); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loader.readCount() != 3 {
		t.Fatalf("expired entry must re-read, reads=%d", loader.readCount())
	}
}

// slowLoader takes its participant read, then holds it until released.
type slowLoader struct {
	*fakeLoader
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (l *slowLoader) GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error) {
	entries, err := l.fakeLoader.GetRaceParticipants(ctx, raceID)
	l.once.Do(func() {
		close(l.read)
		<-l.release
	})
	return entries, err
}

func TestCacheDropsReadOverlappingInvalidation(t *testing.T) {
	loader := &slowLoader{fakeLoader: startedLoader(), read: make(chan struct{}), release: make(chan struct{})}
	cache := NewCache(loader, clockwork.NewFakeClock(), time.Hour)
	ctx := context.Background()

	done := make(chan RaceData)
	go func() {
		data, err := cache.Load(ctx, loader.race.ID)
		if err != nil {
			t.Errorf("load: %v", err)
		}
		done <- data
	}()

	<-loader.read
	loader.addFinisher(4, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))
	cache.Invalidate(loader.race.ID)
	close(loader.release)

	if early := <-done; len(early.Entries) != 0 {
		t.Fatalf("read taken before the write saw %d entries", len(early.Entries))
	}

	data, err := cache.Load(ctx, loader.race.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(data.Entries) != 1 {
		t.Fatalf("entries after invalidation = %d, want 1", len(data.Entries))
	}
	if loader.readCount() != 2 {
		t.Fatalf("reads = %d, want 2", loader.readCount())
	}
}

func TestBuildUnstartedRaceHasNoResults(t *testing.T) {
	loader := startedLoader()
	loader.race.StartTime = nil
	loader.addFinisher(1, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))
	snap := Build(RaceData{Race: loader.race, Entries: loader.entries}, DefaultView(), time.Now())
	if snap.Started || len(snap.Placements) != 0 || len(snap.Groups) != 0 {
		t.Fatalf("unstarted race must have no results: %+v", snap)
	}
	if snap.Entrants != 1 {
		t.Fatalf("entrants=%d", snap.Entrants)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"placements", "groups"} {
		if string(body[key]) != "[]" {
			t.Errorf("%s = %s, want []", key, body[key])
		}
	}
}

func TestFeedRefreshesOnTickAndInvalidation(t *testing.T) {
	loader := startedLoader()
	loader.addFinisher(1, time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC))
	clock := clockwork.NewFakeClock()
	cache := NewCache(loader, clock, 0)
	feed := NewFeed(cache, clock, FeedConfig{Interval: 10 * time.Second, View: DefaultView()})

	feed.Watch(loader.race.ID)
	snaps, cancelSub := feed.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go feed.Run(ctx)

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}
	clock.Advance(10 * time.Second)

	select {
	case snap := <-snaps:
		if snap.Finishers != 1 || snap.Groups[0].Label != "Overall Results" {
			t.Fatalf("snapshot=%+v", snap)
		}
	case <-ctx.Done():
		t.Fatalf("no snapshot after tick")
	}

	loader.addFinisher(2, time.Date(2024, 6, 1, 8, 25, 0, 0, time.UTC))
	cache.Invalidate(loader.race.ID)

	select {
	case snap := <-snaps:
		if snap.Finishers != 2 || *snap.Placements[0].BibNumber != 2 {
			t.Fatalf("snapshot after invalidation=%+v", snap)
		}
	case <-ctx.Done():
		t.Fatalf("no snapshot after invalidation")
	}
}
