// Package agegroup maps a date of birth to a fixed age bracket, evaluated
// against a reference date (the race date, never the query date).
package agegroup

import (
	"math"
	"time"
)

// Bracket is a closed age interval. Max of math.MaxInt means open-ended.
type Bracket struct {
	Label string
	Min   int
	Max   int
}

// Contains reports whether age falls inside the bracket.
func (b Bracket) Contains(age int) bool {
	return age >= b.Min && age <= b.Max
}

// Scheme is an ordered, contiguous set of brackets starting at age 0.
type Scheme struct {
	Name     string
	Brackets []Bracket
}

// Standard is the canonical bracket set used for age-group placements.
var Standard = Scheme{
	Name: "standard",
	Brackets: []Bracket{
		{Label: "0-12", Min: 0, Max: 12},
		{Label: "13-17", Min: 13, Max: 17},
		{Label: "18-29", Min: 18, Max: 29},
		{Label: "30-39", Min: 30, Max: 39},
		{Label: "40-49", Min: 40, Max: 49},
		{Label: "50-59", Min: 50, Max: 59},
		{Label: "60+", Min: 60, Max: math.MaxInt},
	},
}

// Leaderboard groups ages for public displays.
var Leaderboard = Scheme{
	Name: "leaderboard",
	Brackets: []Bracket{
		{Label: "Youth (Under 18)", Min: 0, Max: 17},
		{Label: "Adult (18-29)", Min: 18, Max: 29},
		{Label: "Masters (30-39)", Min: 30, Max: 39},
		{Label: "Veterans (40-49)", Min: 40, Max: 49},
		{Label: "Seniors (50-59)", Min: 50, Max: 59},
		{Label: "Super Seniors (60+)", Min: 60, Max: math.MaxInt},
	},
}

// SchemeByName resolves "standard" or "leaderboard". Unknown names fall back
// to Standard and report false.
func SchemeByName(name string) (Scheme, bool) {
	switch name {
	case Standard.Name:
		return Standard, true
	case Leaderboard.Name:
		return Leaderboard, true
	}
	return Standard, false
}

// Age returns the age in whole years at ref. A birthday not yet reached in
// ref's year does not count.
func Age(dob, ref time.Time) int {
	age := ref.Year() - dob.Year()
	if ref.Month() < dob.Month() || (ref.Month() == dob.Month() && ref.Day() < dob.Day()) {
		age--
	}
	return age
}

// Classify returns the bracket for dob at ref, or nil when dob is missing or
// falls after ref.
func (s Scheme) Classify(dob *time.Time, ref time.Time) *Bracket {
	if dob == nil {
		return nil
	}
	age := Age(*dob, ref)
	if age < 0 {
		return nil
	}
	for i := range s.Brackets {
		if s.Brackets[i].Contains(age) {
			b := s.Brackets[i]
			return &b
		}
	}
	return nil
}

// Index returns the position of label in the scheme, or -1.
func (s Scheme) Index(label string) int {
	for i, b := range s.Brackets {
		if b.Label == label {
			return i
		}
	}
	return -1
}

// Classify classifies against the Standard scheme.
func Classify(dob *time.Time, ref time.Time) *Bracket {
	return Standard.Classify(dob, ref)
}
