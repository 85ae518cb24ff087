package results

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Rotator cycles through display groups, either on a timer or by manual
// paging. It is safe for concurrent use.
type Rotator struct {
	clock    clockwork.Clock
	interval time.Duration

	mu     sync.Mutex
	groups []NamedGroup
	index  int
	auto   bool

	changed chan int
}

// NewRotator creates a rotator advancing every interval while auto mode is on.
func NewRotator(clock clockwork.Clock, interval time.Duration) *Rotator {
	return &Rotator{
		clock:    clock,
		interval: interval,
		changed:  make(chan int, 1),
	}
}

// SetGroups replaces the groups, keeping the current position when it is
// still in range.
func (r *Rotator) SetGroups(groups []NamedGroup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = groups
	if r.index >= len(groups) {
		r.index = 0
	}
}

// SetAuto toggles timed rotation.
func (r *Rotator) SetAuto(on bool) {
	r.mu.Lock()
	r.auto = on
	r.mu.Unlock()
}

// Current returns the group on display and its index.
func (r *Rotator) Current() (NamedGroup, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.groups) == 0 {
		return NamedGroup{}, 0, false
	}
	return r.groups[r.index], r.index, true
}

// Next advances one group, wrapping at the end.
func (r *Rotator) Next() int {
	return r.step(1)
}

// Prev goes back one group, wrapping at the start.
func (r *Rotator) Prev() int {
	return r.step(-1)
}

func (r *Rotator) step(delta int) int {
	r.mu.Lock()
	n := len(r.groups)
	if n == 0 {
		r.mu.Unlock()
		return 0
	}
	r.index = ((r.index+delta)%n + n) % n
	idx := r.index
	r.mu.Unlock()

	select {
	case r.changed <- idx:
	default:
	}
	return idx
}

// Changed delivers the new index after every move. Moves made while a
// notification is pending are not queued.
func (r *Rotator) Changed() <-chan int {
	return r.changed
}

// Run advances on every tick while auto mode is on.
func (r *Rotator) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.mu.Lock()
			auto := r.auto
			r.mu.Unlock()
			if auto {
				r.Next()
			}
		}
	}
}
