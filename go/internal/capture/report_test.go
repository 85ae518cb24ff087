package capture

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
)

func TestReporterSettled(t *testing.T) {
	pending := Item{ID: uuid.New(), Bib: 1, CapturedAt: captureTime, State: StatePending}
	synced := Item{ID: uuid.New(), Bib: 2, CapturedAt: captureTime, State: StateSynced}
	r := NewReporter()

	got := r.Settled([]Item{pending, synced})
	if len(got) != 1 || got[0].Bib != 2 {
		t.Fatalf("first pass = %+v, want only bib 2", got)
	}
	if got := r.Settled([]Item{pending, synced}); len(got) != 0 {
		t.Fatalf("repeat pass = %+v, want nothing new", got)
	}

	pending.State = StateError
	pending.Reason = "bib number 1 not found in this race"
	got = r.Settled([]Item{pending, synced})
	if len(got) != 1 || got[0].Bib != 1 {
		t.Fatalf("after rejection = %+v, want only bib 1", got)
	}

	// dismissed items are forgotten
	r.Settled([]Item{synced})
	if _, ok := r.seen[pending.ID]; ok {
		t.Errorf("reporter still tracks dismissed item")
	}
}

func TestFormatOutcome(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		item Item
		want []string
	}{
		{"synced", Item{ID: id, Bib: 42, CapturedAt: captureTime, State: StateSynced}, []string{"synced", "bib 42", "08:31:05"}},
		{"error", Item{ID: id, Bib: 7, State: StateError, Reason: "bib number 7 has already finished"}, []string{"error", "bib 7", "already finished", id.String()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := FormatOutcome(tt.item)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
		})
	}
}

func TestChangedReportsSyncAndRejection(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()
	f.sub.failNext(4, connect.NewError(connect.CodeNotFound, errors.New("bib number 4 not found in this race")))
	r := NewReporter()

	f.queue.SetOnline(true)
	if _, err := f.queue.Submit(ctx, []int{3, 4}, captureTime); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	f.queue.Wait()

	select {
	case <-f.queue.Changed():
	case <-time.After(time.Second):
		t.Fatal("no change notification after sync")
	}
	var lines []string
	for _, it := range r.Settled(f.queue.Items()) {
		lines = append(lines, FormatOutcome(it))
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want two", lines)
	}
	if !strings.HasPrefix(lines[0], "synced bib 3") || !strings.HasPrefix(lines[1], "error  bib 4") {
		t.Errorf("lines = %q", lines)
	}
}
