package models

import (
	"time"

	"github.com/google/uuid"
)

// FinishTime is the single captured finish for a race participant.
// AdjustedTime is a correction; the original capture is never overwritten.
type FinishTime struct {
	ID                uuid.UUID  `json:"id"`
	RaceParticipantID uuid.UUID  `json:"race_participant_id"`
	FinishTime        time.Time  `json:"finish_time"`
	AdjustedTime      *time.Time `json:"adjusted_time,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Effective returns the adjusted time if present, else the captured time.
func (f FinishTime) Effective() time.Time {
	if f.AdjustedTime != nil {
		return *f.AdjustedTime
	}
	return f.FinishTime
}
