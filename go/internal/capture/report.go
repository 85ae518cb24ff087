package capture

import (
	"fmt"

	"github.com/google/uuid"
)

// Reporter tracks which outcomes the operator has already been shown.
type Reporter struct {
	seen map[uuid.UUID]State
}

func NewReporter() *Reporter {
	return &Reporter{seen: make(map[uuid.UUID]State)}
}

// Settled returns the items that reached synced or error since the last call,
// in capture order. Items that left the queue are forgotten.
func (r *Reporter) Settled(items []Item) []Item {
	var out []Item
	present := make(map[uuid.UUID]struct{}, len(items))
	for _, it := range items {
		present[it.ID] = struct{}{}
		prev, ok := r.seen[it.ID]
		r.seen[it.ID] = it.State
		if it.State == StatePending || (ok && prev == it.State) {
			continue
		}
		out = append(out, it)
	}
	for id := range r.seen {
		if _, ok := present[id]; !ok {
			delete(r.seen, id)
		}
	}
	return out
}

// FormatOutcome renders one settled item as a console line.
func FormatOutcome(it Item) string {
	switch it.State {
	case StateSynced:
		return fmt.Sprintf("synced bib %-5d at %s", it.Bib, it.CapturedAt.Format("15:04:05"))
	case StateError:
		return fmt.Sprintf("error  bib %-5d %s (%s)", it.Bib, it.Reason, it.ID)
	default:
		return fmt.Sprintf("%-6s bib %-5d", it.State, it.Bib)
	}
}
