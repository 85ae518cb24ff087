// Package capture is the operator-side finish queue. Every captured bib is
// written to local storage before any network attempt and survives restarts
// until the timing service has accepted or rejected it.
package capture

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle of a captured item: pending → synced | error.
type State string

const (
	StatePending State = "pending"
	StateSynced  State = "synced"
	StateError   State = "error"
)

// Item is one (bib, timestamp) capture.
type Item struct {
	ID           uuid.UUID  `json:"id"`
	RaceID       uuid.UUID  `json:"race_id"`
	Bib          int        `json:"bib"`
	CapturedAt   time.Time  `json:"captured_at"`
	State        State      `json:"state"`
	Reason       string     `json:"reason,omitempty"`
	Attempts     int        `json:"attempts"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
	FinishTimeID *uuid.UUID `json:"finish_time_id,omitempty"`
}

// Status is the operator's view of the queue.
type Status struct {
	Pending int    `json:"pending"`
	Errors  []Item `json:"errors"`
	Recent  []Item `json:"recent"`
}
