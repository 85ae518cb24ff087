package models

import (
	"time"

	"github.com/google/uuid"
)

// Race is a single timed event. StartTime is nil until the race is started,
// and it is set exactly once.
type Race struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	RaceDate  time.Time  `json:"race_date"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Started reports whether the race clock is running.
func (r Race) Started() bool {
	return r.StartTime != nil
}

// RaceParticipant binds a participant to a race. BibNumber is nil while the
// bib is awaiting assignment.
type RaceParticipant struct {
	ID            uuid.UUID `json:"id"`
	RaceID        uuid.UUID `json:"race_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	BibNumber     *int      `json:"bib_number,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// RaceParticipantView is the normalized read shape handed to the placement
// engine: the participant plus zero or one finish record.
type RaceParticipantView struct {
	ID          uuid.UUID   `json:"id"`
	RaceID      uuid.UUID   `json:"race_id"`
	BibNumber   *int        `json:"bib_number,omitempty"`
	Participant Participant `json:"participant"`
	FinishTime  *FinishTime `json:"finish_time,omitempty"`
}

// Finished reports whether a finish has been captured for this entry.
func (v RaceParticipantView) Finished() bool {
	return v.FinishTime != nil
}
