package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/models"
)

// Submitter sends one capture to the timing service. GetRaceParticipants is
// used to tell a resend of an already stored capture from a real conflict.
type Submitter interface {
	RecordFinishTime(ctx context.Context, raceID uuid.UUID, bib int, ts time.Time) (*models.FinishTime, error)
	GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error)
}

type Config struct {
	Retention     time.Duration // how long synced items stay visible
	SubmitTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Retention:     5 * time.Second,
		SubmitTimeout: 10 * time.Second,
	}
}

// Queue holds the captures for one race. Items are persisted before they
// are sent, and at most one submission per item is in flight.
type Queue struct {
	raceID    uuid.UUID
	store     Store
	submitter Submitter
	clock     clockwork.Clock
	cfg       Config

	mu       sync.Mutex
	items    map[uuid.UUID]*Item
	order    []uuid.UUID
	inflight map[uuid.UUID]bool
	online   bool
	closed   bool

	wg      sync.WaitGroup
	changed chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

// Open loads any items left in the store for raceID. The queue starts
// offline; nothing is sent until SetOnline(true) or Sweep.
func Open(ctx context.Context, raceID uuid.UUID, store Store, submitter Submitter, clock clockwork.Clock, cfg Config) (*Queue, error) {
	if store == nil || submitter == nil {
		return nil, errors.New("capture queue requires a store and a submitter")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultConfig()
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = def.SubmitTimeout
	}

	saved, err := store.List(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load capture queue: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	q := &Queue{
		raceID:    raceID,
		store:     store,
		submitter: submitter,
		clock:     clock,
		cfg:       cfg,
		items:     make(map[uuid.UUID]*Item, len(saved)),
		inflight:  make(map[uuid.UUID]bool),
		changed:   make(chan struct{}, 1),
		ctx:       base,
		cancel:    cancel,
	}
	pending := 0
	for i := range saved {
		it := saved[i]
		q.items[it.ID] = &it
		q.order = append(q.order, it.ID)
		if it.State == StatePending {
			pending++
		}
	}
	if len(saved) > 0 {
		log.Info().
			Str("race_id", raceID.String()).
			Int("items", len(saved)).
			Int("pending", pending).
			Msg("restored capture queue")
	}
	return q, nil
}

// Submit captures bibs with timestamp ts. Every item is stored locally
// before Submit returns; sending happens in the background.
func (q *Queue) Submit(ctx context.Context, bibs []int, ts time.Time) ([]Item, error) {
	if len(bibs) == 0 {
		return nil, ErrNoBibs
	}
	for _, bib := range bibs {
		if bib <= 0 {
			return nil, fmt.Errorf("bib %d: %w", bib, ErrInvalidBib)
		}
	}

	out := make([]Item, 0, len(bibs))
	for _, bib := range bibs {
		it := Item{
			ID:         uuid.New(),
			RaceID:     q.raceID,
			Bib:        bib,
			CapturedAt: ts,
			State:      StatePending,
		}
		if err := q.store.Save(ctx, it); err != nil {
			return out, fmt.Errorf("failed to store capture for bib %d: %w", bib, err)
		}

		q.mu.Lock()
		stored := it
		q.items[it.ID] = &stored
		q.order = append(q.order, it.ID)
		if q.online {
			q.dispatchLocked(it.ID)
		}
		q.mu.Unlock()

		out = append(out, it)
	}
	q.notify()
	return out, nil
}

// dispatchLocked starts a submission for id unless one is already running.
func (q *Queue) dispatchLocked(id uuid.UUID) {
	it, ok := q.items[id]
	if !ok || q.closed || it.State != StatePending || q.inflight[id] {
		return
	}
	q.inflight[id] = true
	q.wg.Add(1)
	go q.send(*it)
}

func (q *Queue) send(it Item) {
	defer q.wg.Done()

	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.SubmitTimeout)
	ft, err := q.submitter.RecordFinishTime(ctx, it.RaceID, it.Bib, it.CapturedAt)
	if connect.CodeOf(err) == connect.CodeAlreadyExists {
		ft, err = q.resolveConflict(ctx, it, err)
	}
	cancel()

	q.mu.Lock()
	delete(q.inflight, it.ID)
	cur, ok := q.items[it.ID]
	if !ok {
		q.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		now := q.clock.Now()
		cur.State = StateSynced
		cur.Reason = ""
		cur.SyncedAt = &now
		if ft != nil {
			id := ft.ID
			cur.FinishTimeID = &id
		}
	case IsSemantic(err):
		cur.State = StateError
		cur.Reason = reason(err)
	default:
		cur.Attempts++
		cur.Reason = reason(err)
	}
	snapshot := *cur

	logger := log.With().
		Str("race_id", it.RaceID.String()).
		Int("bib", it.Bib).
		Str("item_id", it.ID.String()).
		Logger()

	// Saved under mu so Dismiss or Purge cannot delete the row in between
	// and have it written back.
	if err := q.store.Save(context.Background(), snapshot); err != nil {
		logger.Error().Err(err).Msg("failed to persist capture state")
	}
	q.mu.Unlock()

	switch snapshot.State {
	case StateSynced:
		logger.Info().Msg("capture synced")
	case StateError:
		logger.Warn().Str("reason", snapshot.Reason).Msg("capture rejected")
	default:
		logger.Debug().Err(err).Int("attempts", snapshot.Attempts).Msg("capture send failed, will retry")
	}
	q.notify()
}

// resolveConflict handles AlreadyExists. When the stored finish carries this
// item's capture time the earlier send went through and only its reply was
// lost, so the item counts as synced. Any other finish is a real conflict.
func (q *Queue) resolveConflict(ctx context.Context, it Item, conflict error) (*models.FinishTime, error) {
	entries, err := q.submitter.GetRaceParticipants(ctx, it.RaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing finish for bib %d: %w", it.Bib, err)
	}
	for _, e := range entries {
		if e.BibNumber == nil || *e.BibNumber != it.Bib || e.FinishTime == nil {
			continue
		}
		if sameInstant(e.FinishTime.FinishTime, it.CapturedAt) {
			log.Info().
				Str("race_id", it.RaceID.String()).
				Int("bib", it.Bib).
				Msg("capture already stored by an earlier send")
			return e.FinishTime, nil
		}
	}
	return nil, conflict
}

// sameInstant compares at the record store's microsecond precision.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

// Sweep sends every pending item that is not already in flight.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, id := range q.order {
		it := q.items[id]
		if it.State == StatePending && !q.inflight[id] {
			q.dispatchLocked(id)
			n++
		}
	}
	return n
}

// SetOnline records connectivity. Coming back online sweeps the queue.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	was := q.online
	q.online = online
	q.mu.Unlock()

	if online && !was {
		if n := q.Sweep(); n > 0 {
			log.Info().Str("race_id", q.raceID.String()).Int("pending", n).Msg("connectivity restored, resending captures")
		}
	}
	if online != was {
		q.notify()
	}
}

func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// Purge drops synced items older than the retention window.
func (q *Queue) Purge(ctx context.Context) (int, error) {
	cutoff := q.clock.Now().Add(-q.cfg.Retention)

	q.mu.Lock()
	var expired []uuid.UUID
	for _, id := range q.order {
		it := q.items[id]
		if it.State == StateSynced && it.SyncedAt != nil && !it.SyncedAt.After(cutoff) {
			expired = append(expired, id)
		}
	}
	q.mu.Unlock()

	for i, id := range expired {
		if err := q.remove(ctx, id); err != nil {
			return i, err
		}
	}
	if len(expired) > 0 {
		q.notify()
	}
	return len(expired), nil
}

// Dismiss removes a synced or rejected item. Pending items stay queued.
func (q *Queue) Dismiss(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	it, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return ErrItemNotFound
	}
	if it.State == StatePending {
		q.mu.Unlock()
		return ErrItemStillQueued
	}
	q.mu.Unlock()

	if err := q.remove(ctx, id); err != nil {
		return err
	}
	q.notify()
	return nil
}

func (q *Queue) remove(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to remove capture item: %w", err)
	}
	delete(q.items, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

// Items returns a copy of every item in capture order.
func (q *Queue) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, *q.items[id])
	}
	return out
}

// Status summarizes the queue: pending count, rejected items and recently
// synced items.
func (q *Queue) Status() Status {
	st := Status{Errors: []Item{}, Recent: []Item{}}
	for _, it := range q.Items() {
		switch it.State {
		case StatePending:
			st.Pending++
		case StateError:
			st.Errors = append(st.Errors, it)
		case StateSynced:
			st.Recent = append(st.Recent, it)
		}
	}
	return st
}

// Changed fires after any item changes state.
func (q *Queue) Changed() <-chan struct{} {
	return q.changed
}

func (q *Queue) notify() {
	select {
	case q.changed <- struct{}{}:
	default:
	}
}

// Wait blocks until in-flight submissions finish.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Close cancels in-flight submissions and waits for them. Items that were
// cancelled stay pending in the store.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cancel()
	q.wg.Wait()
}
