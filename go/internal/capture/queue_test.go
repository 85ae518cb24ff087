package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/raceday/go/internal/models"
)

var captureTime = time.Date(2024, 6, 1, 8, 31, 5, 0, time.UTC)

type submission struct {
	bib int
	ts  time.Time
}

// fakeSubmitter keeps one finish per bib, like the record store, unless an
// error is queued for the bib.
type fakeSubmitter struct {
	mu       sync.Mutex
	errs     map[int][]error
	calls    []submission
	recorded map[int]*models.FinishTime
	lostAcks map[int]int
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{
		errs:     make(map[int][]error),
		recorded: make(map[int]*models.FinishTime),
		lostAcks: make(map[int]int),
	}
}

func (f *fakeSubmitter) failNext(bib int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[bib] = append(f.errs[bib], err)
}

// recordElsewhere stores a finish for bib as another device would.
func (f *fakeSubmitter) recordElsewhere(bib int, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded[bib] = &models.FinishTime{ID: uuid.New(), FinishTime: ts}
}

// loseAck makes the next send for bib store the finish but fail to answer.
func (f *fakeSubmitter) loseAck(bib int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lostAcks[bib]++
}

func (f *fakeSubmitter) RecordFinishTime(ctx context.Context, raceID uuid.UUID, bib int, ts time.Time) (*models.FinishTime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, submission{bib: bib, ts: ts})
	if errs := f.errs[bib]; len(errs) > 0 {
		f.errs[bib] = errs[1:]
		return nil, errs[0]
	}
	if _, ok := f.recorded[bib]; ok {
		return nil, connect.NewError(connect.CodeAlreadyExists, fmt.Errorf("bib number %d has already finished", bib))
	}
	ft := &models.FinishTime{ID: uuid.New(), FinishTime: ts}
	f.recorded[bib] = ft
	if f.lostAcks[bib] > 0 {
		f.lostAcks[bib]--
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("connection reset"))
	}
	return ft, nil
}

func (f *fakeSubmitter) GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.RaceParticipantView, 0, len(f.recorded))
	for bib, ft := range f.recorded {
		b := bib
		finish := *ft
		out = append(out, models.RaceParticipantView{ID: uuid.New(), RaceID: raceID, BibNumber: &b, FinishTime: &finish})
	}
	return out, nil
}

func (f *fakeSubmitter) submissions() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.calls...)
}

func openStore(t *testing.T, path string) *SQLiteStore {
	t.Helper()
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	return store
}

type queueFixture struct {
	raceID uuid.UUID
	store  *SQLiteStore
	sub    *fakeSubmitter
	clock  *clockwork.FakeClock
	queue  *Queue
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	f := &queueFixture{
		raceID: uuid.New(),
		store:  openStore(t, filepath.Join(t.TempDir(), "capture.db")),
		sub:    newFakeSubmitter(),
		clock:  clockwork.NewFakeClockAt(captureTime),
	}
	q, err := Open(context.Background(), f.raceID, f.store, f.sub, f.clock, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(q.Close)
	f.queue = q
	return f
}

func itemByBib(t *testing.T, items []Item, bib int) Item {
	t.Helper()
	for _, it := range items {
		if it.Bib == bib {
			return it
		}
	}
	t.Fatalf("no item for bib %d", bib)
	return Item{}
}

func TestSubmitOfflineThenSync(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	f.sub.recordElsewhere(12, captureTime.Add(-2*time.Second))

	items, err := f.queue.Submit(ctx, []int{12, 13}, captureTime)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if got := f.queue.Status().Pending; got != 2 {
		t.Fatalf("pending while offline = %d, want 2", got)
	}
	if n := len(f.sub.submissions()); n != 0 {
		t.Fatalf("offline queue sent %d submissions", n)
	}

	f.queue.SetOnline(true)
	f.queue.Wait()

	all := f.queue.Items()
	rejected := itemByBib(t, all, 12)
	if rejected.State != StateError {
		t.Fatalf("bib 12 state = %s, want error", rejected.State)
	}
	if rejected.Reason != "bib number 12 has already finished" {
		t.Errorf("bib 12 reason = %q", rejected.Reason)
	}
	synced := itemByBib(t, all, 13)
	if synced.State != StateSynced || synced.FinishTimeID == nil {
		t.Fatalf("bib 13 = %+v, want synced with finish id", synced)
	}

	st := f.queue.Status()
	if st.Pending != 0 || len(st.Errors) != 1 || len(st.Recent) != 1 {
		t.Errorf("status = %+v", st)
	}

	for _, s := range f.sub.submissions() {
		if !s.ts.Equal(captureTime) {
			t.Errorf("bib %d sent with %v, want capture time %v", s.bib, s.ts, captureTime)
		}
	}

	// Rejected items are not retried.
	f.queue.Sweep()
	f.queue.Wait()
	if n := len(f.sub.submissions()); n != 2 {
		t.Errorf("submissions after sweep = %d, want 2", n)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	if _, err := f.queue.Submit(ctx, nil, captureTime); !errors.Is(err, ErrNoBibs) {
		t.Errorf("empty submit err = %v, want ErrNoBibs", err)
	}
	if _, err := f.queue.Submit(ctx, []int{3, 0}, captureTime); !errors.Is(err, ErrInvalidBib) {
		t.Errorf("zero bib err = %v, want ErrInvalidBib", err)
	}
	if n := len(f.queue.Items()); n != 0 {
		t.Errorf("invalid submit stored %d items", n)
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "capture.db")
	raceID := uuid.New()
	clock := clockwork.NewFakeClockAt(captureTime)

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	first, err := Open(ctx, raceID, store, newFakeSubmitter(), clock, DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := first.Submit(ctx, []int{5, 7}, captureTime); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	first.Close()
	db.Close()

	sub := newFakeSubmitter()
	second, err := Open(ctx, raceID, openStore(t, path), sub, clock, DefaultConfig())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	items := second.Items()
	if len(items) != 2 || items[0].Bib != 5 || items[1].Bib != 7 {
		t.Fatalf("restored items = %+v, want bibs 5 and 7 in order", items)
	}
	for _, it := range items {
		if it.State != StatePending {
			t.Errorf("bib %d restored as %s", it.Bib, it.State)
		}
		if !it.CapturedAt.Equal(captureTime) {
			t.Errorf("bib %d captured at %v, want %v", it.Bib, it.CapturedAt, captureTime)
		}
	}

	second.SetOnline(true)
	second.Wait()
	if st := second.Status(); st.Pending != 0 || len(st.Recent) != 2 {
		t.Errorf("status after sync = %+v", st)
	}
	for _, s := range sub.submissions() {
		if !s.ts.Equal(captureTime) {
			t.Errorf("bib %d sent with %v, want original capture time", s.bib, s.ts)
		}
	}
}

func TestTransientFailureStaysPending(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	f.sub.failNext(9, connect.NewError(connect.CodeUnavailable, errors.New("connection refused")))

	f.queue.SetOnline(true)
	if _, err := f.queue.Submit(ctx, []int{9}, captureTime); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.queue.Wait()

	it := itemByBib(t, f.queue.Items(), 9)
	if it.State != StatePending || it.Attempts != 1 {
		t.Fatalf("after transient failure: state=%s attempts=%d", it.State, it.Attempts)
	}

	if n := f.queue.Sweep(); n != 1 {
		t.Fatalf("sweep dispatched %d, want 1", n)
	}
	f.queue.Wait()
	if it := itemByBib(t, f.queue.Items(), 9); it.State != StateSynced {
		t.Errorf("after retry state = %s, want synced", it.State)
	}
}

func TestResendAfterLostAckIsSynced(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	f.sub.loseAck(7)

	f.queue.SetOnline(true)
	if _, err := f.queue.Submit(ctx, []int{7}, captureTime); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.queue.Wait()
	if it := itemByBib(t, f.queue.Items(), 7); it.State != StatePending {
		t.Fatalf("after lost ack state = %s, want pending", it.State)
	}

	f.queue.Sweep()
	f.queue.Wait()

	it := itemByBib(t, f.queue.Items(), 7)
	if it.State != StateSynced || it.Reason != "" {
		t.Fatalf("after resend = %+v, want synced", it)
	}
	if it.FinishTimeID == nil || *it.FinishTimeID != f.sub.recorded[7].ID {
		t.Errorf("finish id = %v, want the stored finish %v", it.FinishTimeID, f.sub.recorded[7].ID)
	}
	if n := len(f.sub.submissions()); n != 2 {
		t.Errorf("submissions = %d, want 2", n)
	}
}

// gatedStore holds synced saves until release is closed.
type gatedStore struct {
	*SQLiteStore
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func (g *gatedStore) Save(ctx context.Context, it Item) error {
	if it.State == StateSynced {
		g.once.Do(func() { close(g.reached) })
		<-g.release
	}
	return g.SQLiteStore.Save(ctx, it)
}

func TestDismissDuringSyncedSaveStaysDeleted(t *testing.T) {
	ctx := context.Background()
	raceID := uuid.New()
	store := &gatedStore{
		SQLiteStore: openStore(t, filepath.Join(t.TempDir(), "capture.db")),
		reached:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	q, err := Open(ctx, raceID, store, newFakeSubmitter(), clockwork.NewFakeClockAt(captureTime), DefaultConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(q.Close)

	q.SetOnline(true)
	items, err := q.Submit(ctx, []int{15}, captureTime)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-store.reached

	dismissed := make(chan error, 1)
	go func() { dismissed <- q.Dismiss(ctx, items[0].ID) }()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	if err := <-dismissed; err != nil {
		t.Fatalf("Dismiss: %v", err)
	}
	q.Wait()

	stored, err := store.List(ctx, raceID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("store holds %d items after dismiss, want 0", len(stored))
	}
	if n := len(q.Items()); n != 0 {
		t.Errorf("queue holds %d items after dismiss, want 0", n)
	}
}

func TestPurgeAfterRetention(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	f.queue.SetOnline(true)
	if _, err := f.queue.Submit(ctx, []int{21}, captureTime); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.queue.Wait()

	f.clock.Advance(4 * time.Second)
	if n, err := f.queue.Purge(ctx); err != nil || n != 0 {
		t.Fatalf("early purge = %d, %v", n, err)
	}

	f.clock.Advance(2 * time.Second)
	if n, err := f.queue.Purge(ctx); err != nil || n != 1 {
		t.Fatalf("purge = %d, %v; want 1", n, err)
	}
	if n := len(f.queue.Items()); n != 0 {
		t.Errorf("items after purge = %d", n)
	}
	stored, err := f.store.List(ctx, f.raceID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("store still holds %d items", len(stored))
	}
}

func TestDismiss(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	f.sub.failNext(4, connect.NewError(connect.CodeNotFound, errors.New("bib number 4 not found in this race")))

	items, err := f.queue.Submit(ctx, []int{4, 8}, captureTime)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := f.queue.Dismiss(ctx, items[0].ID); !errors.Is(err, ErrItemStillQueued) {
		t.Errorf("dismiss pending err = %v, want ErrItemStillQueued", err)
	}
	if err := f.queue.Dismiss(ctx, uuid.New()); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("dismiss unknown err = %v, want ErrItemNotFound", err)
	}

	f.queue.SetOnline(true)
	f.queue.Wait()

	if err := f.queue.Dismiss(ctx, items[0].ID); err != nil {
		t.Fatalf("dismiss rejected item: %v", err)
	}
	remaining := f.queue.Items()
	if len(remaining) != 1 || remaining[0].Bib != 8 {
		t.Errorf("remaining = %+v, want only bib 8", remaining)
	}
}

func TestMonitorDrivesQueue(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" || !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := newQueueFixture(t)
	ctx := context.Background()
	mon := NewMonitor(srv.Client(), srv.URL, f.clock, time.Second)
	mon.OnChange(f.queue.SetOnline)

	if mon.Probe(ctx) {
		t.Fatal("probe reported online for failing health check")
	}
	if _, err := f.queue.Submit(ctx, []int{30}, captureTime); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.queue.Wait()
	if n := len(f.sub.submissions()); n != 0 {
		t.Fatalf("sent %d submissions while offline", n)
	}

	healthy.Store(true)
	if !mon.Probe(ctx) {
		t.Fatal("probe reported offline for healthy server")
	}
	f.queue.Wait()
	if it := itemByBib(t, f.queue.Items(), 30); it.State != StateSynced {
		t.Errorf("bib 30 state = %s after reconnect", it.State)
	}
}
