package timing

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/raceday/go/internal/models"
)

// RaceRequest identifies a race.
type RaceRequest struct {
	RaceID uuid.UUID `json:"race_id"`
}

// CreateRaceRequest holds the fields for a new race.
type CreateRaceRequest struct {
	Name     string    `json:"name"`
	RaceDate time.Time `json:"race_date"`
}

// CreateParticipantRequest holds the fields for a new participant.
type CreateParticipantRequest struct {
	FirstName             string        `json:"first_name"`
	LastName              string        `json:"last_name"`
	Gender                models.Gender `json:"gender"`
	DateOfBirth           *time.Time    `json:"date_of_birth,omitempty"`
	Email                 string        `json:"email,omitempty"`
	Phone                 string        `json:"phone,omitempty"`
	EmergencyContactName  string        `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string        `json:"emergency_contact_phone,omitempty"`
}

// AddParticipantRequest registers a participant for a race, optionally with
// a bib.
type AddParticipantRequest struct {
	RaceID        uuid.UUID `json:"race_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	BibNumber     *int      `json:"bib_number,omitempty"`
}

// AssignBibRequest sets the bib on an existing race entry.
type AssignBibRequest struct {
	RaceParticipantID uuid.UUID `json:"race_participant_id"`
	BibNumber         int       `json:"bib_number"`
}

// RemoveParticipantRequest identifies a race entry to remove.
type RemoveParticipantRequest struct {
	RaceParticipantID uuid.UUID `json:"race_participant_id"`
}

// RecordFinishTimeRequest captures one finish. Timestamp defaults to now.
type RecordFinishTimeRequest struct {
	RaceID    uuid.UUID  `json:"race_id"`
	BibNumber int        `json:"bib_number"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// RecordFinishTimesRequest captures several bibs with one shared timestamp.
type RecordFinishTimesRequest struct {
	RaceID     uuid.UUID  `json:"race_id"`
	BibNumbers []int      `json:"bib_numbers"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// BibOutcome is the result of one bib in a batch capture. Code is empty on
// success.
type BibOutcome struct {
	BibNumber  int                `json:"bib_number"`
	FinishTime *models.FinishTime `json:"finish_time,omitempty"`
	Code       string             `json:"code,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// RecordFinishTimesResponse reports every bib separately.
type RecordFinishTimesResponse struct {
	Outcomes []BibOutcome `json:"outcomes"`
}

// UpdateFinishTimeRequest sets the adjusted time on a finish.
type UpdateFinishTimeRequest struct {
	FinishTimeID uuid.UUID `json:"finish_time_id"`
	AdjustedTime time.Time `json:"adjusted_time"`
}

// DeleteFinishTimeRequest identifies a finish to delete.
type DeleteFinishTimeRequest struct {
	FinishTimeID uuid.UUID `json:"finish_time_id"`
}

// GetPlacementsRequest selects a race and a tie policy ("input" or "bib").
type GetPlacementsRequest struct {
	RaceID uuid.UUID `json:"race_id"`
	Tie    string    `json:"tie,omitempty"`
}

// GetRaceParticipantsResponse lists a race's entries.
type GetRaceParticipantsResponse struct {
	Participants []models.RaceParticipantView `json:"participants"`
}

// GetPlacementsResponse lists computed placements.
type GetPlacementsResponse struct {
	Placements []models.PlacementResult `json:"placements"`
}

// Empty is returned by operations without a result.
type Empty struct{}

// RecentFinish is one row of the recent finishes list.
type RecentFinish struct {
	RaceParticipantID uuid.UUID `json:"race_participant_id"`
	BibNumber         *int      `json:"bib_number,omitempty"`
	Name              string    `json:"name"`
	FinishTime        time.Time `json:"finish_time"`
	Elapsed           string    `json:"elapsed,omitempty"`
}

// RaceStats summarizes progress of a race.
type RaceStats struct {
	RaceID      uuid.UUID      `json:"race_id"`
	Total       int            `json:"total"`
	Finished    int            `json:"finished"`
	StillRacing int            `json:"still_racing"`
	Recent      []RecentFinish `json:"recent"`
}
