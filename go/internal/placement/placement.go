// Package placement ranks finishers of a race. Compute is a pure function:
// identical inputs always give identical output.
package placement

import (
	"sort"
	"time"

	"github.com/mcdev12/raceday/go/internal/agegroup"
	"github.com/mcdev12/raceday/go/internal/models"
)

// TiePolicy decides the order of finishers with identical elapsed times.
type TiePolicy string

const (
	// TieByInputOrder keeps the order the entries were supplied in.
	TieByInputOrder TiePolicy = "input"
	// TieByBib orders by ascending bib number; entries without a bib go last.
	TieByBib TiePolicy = "bib"
)

// ParseTiePolicy maps a query value to a policy, defaulting to input order.
func ParseTiePolicy(s string) TiePolicy {
	if TiePolicy(s) == TieByBib {
		return TieByBib
	}
	return TieByInputOrder
}

type options struct {
	tie    TiePolicy
	scheme agegroup.Scheme
}

// Option configures Compute.
type Option func(*options)

// WithTiePolicy overrides the default input-order tie break.
func WithTiePolicy(p TiePolicy) Option {
	return func(o *options) { o.tie = p }
}

// WithAgeScheme overrides the bracket scheme used for age-group places.
func WithAgeScheme(s agegroup.Scheme) Option {
	return func(o *options) { o.scheme = s }
}

type finisher struct {
	result models.PlacementResult
	index  int
}

// Compute ranks every entry carrying a finish time. Entries without one
// produce no result. Elapsed times may be negative; those results are
// flagged as anomalies instead of being dropped or clamped.
func Compute(entries []models.RaceParticipantView, start, raceDate time.Time, opts ...Option) []models.PlacementResult {
	o := options{tie: TieByInputOrder, scheme: agegroup.Standard}
	for _, opt := range opts {
		opt(&o)
	}

	finishers := make([]finisher, 0, len(entries))
	for i, e := range entries {
		if e.FinishTime == nil {
			continue
		}
		effective := e.FinishTime.Effective()
		elapsed := effective.Sub(start)

		var group *string
		if b := o.scheme.Classify(e.Participant.DateOfBirth, raceDate); b != nil {
			label := b.Label
			group = &label
		}

		finishers = append(finishers, finisher{
			index: i,
			result: models.PlacementResult{
				RaceParticipantID: e.ID,
				FinishTimeID:      e.FinishTime.ID,
				BibNumber:         e.BibNumber,
				Participant:       e.Participant,
				EffectiveFinish:   effective,
				ElapsedTime:       elapsed,
				AgeGroup:          group,
				Anomaly:           elapsed < 0,
			},
		})
	}

	sort.SliceStable(finishers, func(i, j int) bool {
		a, b := finishers[i], finishers[j]
		if a.result.ElapsedTime != b.result.ElapsedTime {
			return a.result.ElapsedTime < b.result.ElapsedTime
		}
		if o.tie == TieByBib {
			return bibLess(a.result.BibNumber, b.result.BibNumber)
		}
		return false
	})

	genderCounts := make(map[models.Gender]int)
	ageCounts := make(map[string]int)
	results := make([]models.PlacementResult, len(finishers))
	for i := range finishers {
		r := finishers[i].result
		r.OverallPlace = i + 1

		if g := r.Participant.Gender; g.Recognized() {
			genderCounts[g]++
			place := genderCounts[g]
			r.GenderPlace = &place
		}
		if r.AgeGroup != nil {
			ageCounts[*r.AgeGroup]++
			place := ageCounts[*r.AgeGroup]
			r.AgeGroupPlace = &place
		}
		results[i] = r
	}
	return results
}

// bibLess orders present bibs ascending and absent bibs last. Equal bibs
// compare as not-less so the stable sort keeps input order.
func bibLess(a, b *int) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return *a < *b
	}
}

// Anomalies returns the results whose finish precedes the race start.
func Anomalies(results []models.PlacementResult) []models.PlacementResult {
	var out []models.PlacementResult
	for _, r := range results {
		if r.Anomaly {
			out = append(out, r)
		}
	}
	return out
}
