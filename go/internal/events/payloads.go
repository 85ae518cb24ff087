package events

import (
	"encoding/json"
	"time"
)

// Event types written to race_outbox and used as the subject suffix on the
// event stream.
const (
	TypeFinishRecorded     = "finish.recorded"
	TypeFinishUpdated      = "finish.updated"
	TypeFinishDeleted      = "finish.deleted"
	TypeRaceStarted        = "race.started"
	TypeParticipantAdded   = "participant.added"
	TypeParticipantRemoved = "participant.removed"
	TypeBibAssigned        = "bib.assigned"
)

// Envelope is the message body published for every outbox event.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RaceID    string          `json:"raceId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// FinishRecordedPayload is the payload for a finish.recorded event
type FinishRecordedPayload struct {
	FinishTimeID      string    `json:"finish_time_id"`
	RaceParticipantID string    `json:"race_participant_id"`
	BibNumber         int       `json:"bib_number"`
	FinishTime        time.Time `json:"finish_time"`
}

// FinishUpdatedPayload is the payload for a finish.updated event
type FinishUpdatedPayload struct {
	FinishTimeID string    `json:"finish_time_id"`
	FinishTime   time.Time `json:"finish_time"`
	AdjustedTime time.Time `json:"adjusted_time"`
}

// FinishDeletedPayload is the payload for a finish.deleted event
type FinishDeletedPayload struct {
	FinishTimeID      string `json:"finish_time_id"`
	RaceParticipantID string `json:"race_participant_id"`
}

// RaceStartedPayload is the payload for a race.started event
type RaceStartedPayload struct {
	RaceID    string    `json:"race_id"`
	StartedAt time.Time `json:"started_at"`
}

// EntryPayload is the payload for participant.added, participant.removed and
// bib.assigned events
type EntryPayload struct {
	RaceParticipantID string `json:"race_participant_id"`
	ParticipantID     string `json:"participant_id"`
	BibNumber         *int   `json:"bib_number,omitempty"`
}
