package results

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func groupsNamed(names ...string) []NamedGroup {
	out := make([]NamedGroup, len(names))
	for i, n := range names {
		out[i] = NamedGroup{Label: n}
	}
	return out
}

func TestRotatorManualPaging(t *testing.T) {
	r := NewRotator(clockwork.NewFakeClock(), time.Second)
	if _, _, ok := r.Current(); ok {
		t.Fatalf("empty rotator has no current group")
	}
	r.SetGroups(groupsNamed("a", "b", "c"))

	if idx := r.Next(); idx != 1 {
		t.Fatalf("next=%d", idx)
	}
	if idx := r.Prev(); idx != 0 {
		t.Fatalf("prev=%d", idx)
	}
	if idx := r.Prev(); idx != 2 {
		t.Fatalf("prev wrap=%d", idx)
	}
	if idx := r.Next(); idx != 0 {
		t.Fatalf("next wrap=%d", idx)
	}

	r.Next()
	r.Next()
	r.SetGroups(groupsNamed("x"))
	if g, idx, _ := r.Current(); idx != 0 || g.Label != "x" {
		t.Fatalf("out of range index must reset, got %d %s", idx, g.Label)
	}
}

func TestRotatorAutoAdvance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRotator(clock, 3*time.Second)
	r.SetGroups(groupsNamed("a", "b"))
	r.SetAuto(true)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go r.Run(ctx)

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}
	clock.Advance(3 * time.Second)

	select {
	case idx := <-r.Changed():
		if idx != 1 {
			t.Fatalf("idx=%d", idx)
		}
	case <-ctx.Done():
		t.Fatalf("rotator did not advance")
	}
}
