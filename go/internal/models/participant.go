package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gender is the recorded gender of a participant. Only the enumerated values
// take part in gender placements.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Recognized reports whether g is one of the enumerated genders.
func (g Gender) Recognized() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// Participant represents a registered person. Owned by the record store.
type Participant struct {
	ID                    uuid.UUID  `json:"id"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	Gender                Gender     `json:"gender"`
	DateOfBirth           *time.Time `json:"date_of_birth,omitempty"`
	Email                 string     `json:"email,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	EmergencyContactName  string     `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string     `json:"emergency_contact_phone,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// DisplayName joins first and last name, falling back to "Unnamed".
func (p Participant) DisplayName() string {
	name := strings.TrimSpace(strings.Join([]string{p.FirstName, p.LastName}, " "))
	if name == "" {
		return "Unnamed"
	}
	return name
}
