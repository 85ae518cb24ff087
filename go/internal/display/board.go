// Package display renders live leaderboards received from the results
// gateway, one group at a time.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"text/tabwriter"

	"github.com/mcdev12/raceday/go/internal/gateway"
	"github.com/mcdev12/raceday/go/internal/placement"
	"github.com/mcdev12/raceday/go/internal/results"
)

// Board keeps the latest snapshot and the rotator paging through its groups.
type Board struct {
	rotator *results.Rotator

	mu       sync.Mutex
	snapshot results.Snapshot
	have     bool
}

func NewBoard(rotator *results.Rotator) *Board {
	return &Board{rotator: rotator}
}

// Apply consumes one gateway frame. It reports whether the board changed.
// Event frames only announce that a snapshot is coming and are ignored.
func (b *Board) Apply(msg gateway.Message) (bool, error) {
	if msg.Type != gateway.MessageSnapshot {
		return false, nil
	}
	var snap results.Snapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		return false, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	b.mu.Lock()
	b.snapshot = snap
	b.have = true
	b.mu.Unlock()

	b.rotator.SetGroups(snap.Groups)
	return true, nil
}

// Render writes the group currently on display.
func (b *Board) Render(w io.Writer) error {
	b.mu.Lock()
	snap, have := b.snapshot, b.have
	b.mu.Unlock()

	if !have {
		_, err := fmt.Fprintln(w, "waiting for results...")
		return err
	}
	if !snap.Started {
		_, err := fmt.Fprintf(w, "%s\nnot started (%d entrants)\n", snap.RaceName, snap.Entrants)
		return err
	}

	group, idx, ok := b.rotator.Current()
	if !ok {
		_, err := fmt.Fprintf(w, "%s\nno finishers yet\n", snap.RaceName)
		return err
	}

	fmt.Fprintf(w, "%s  %d/%d finished\n", snap.RaceName, snap.Finishers, snap.Entrants)
	fmt.Fprintf(w, "[%d/%d] %s\n", idx+1, len(snap.Groups), group.Label)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tBIB\tNAME\tTIME")
	for _, r := range group.Results {
		bib := "-"
		if r.BibNumber != nil {
			bib = fmt.Sprint(*r.BibNumber)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.OverallPlace, bib, r.Participant.DisplayName(), placement.FormatElapsed(r.ElapsedTime))
	}
	if len(snap.Anomalies) > 0 {
		fmt.Fprintf(tw, "\n%d finish(es) before the start time\t\t\t\n", len(snap.Anomalies))
	}
	return tw.Flush()
}
