package models

import (
	"time"

	"github.com/google/uuid"
)

// PlacementResult is derived on every read and never stored.
type PlacementResult struct {
	RaceParticipantID uuid.UUID     `json:"race_participant_id"`
	FinishTimeID      uuid.UUID     `json:"finish_time_id"`
	BibNumber         *int          `json:"bib_number,omitempty"`
	Participant       Participant   `json:"participant"`
	EffectiveFinish   time.Time     `json:"finish_time"`
	ElapsedTime       time.Duration `json:"elapsed_time"`
	OverallPlace      int           `json:"overall_place"`
	GenderPlace       *int          `json:"gender_place"`
	AgeGroup          *string       `json:"age_group"`
	AgeGroupPlace     *int          `json:"age_group_place"`
	// Anomaly marks a finish recorded before the race start.
	Anomaly bool `json:"anomaly,omitempty"`
}
