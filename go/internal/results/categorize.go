// Package results groups ranked placements into named display categories
// and keeps them fresh for live leaderboards.
package results

import (
	"fmt"
	"sort"
	"time"

	"github.com/mcdev12/raceday/go/internal/agegroup"
	"github.com/mcdev12/raceday/go/internal/models"
)

// Scheme selects how results are grouped.
type Scheme string

const (
	SchemeOverall   Scheme = "overall"
	SchemeGender    Scheme = "gender"
	SchemeAge       Scheme = "age"
	SchemeGenderAge Scheme = "gender-age"
)

const (
	overallLabel      = "Overall Results"
	unassignedGender  = "Unassigned Gender"
	unassignedAge     = "Unassigned Age"
	genderAgeLabelFmt = "%s - %s"
)

// displayGenders is the fixed gender order; everything else is unassigned.
var displayGenders = []models.Gender{models.GenderMale, models.GenderFemale}

// ParseScheme validates a scheme name.
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeOverall, SchemeGender, SchemeAge, SchemeGenderAge:
		return Scheme(s), nil
	case "":
		return SchemeOverall, nil
	}
	return "", fmt.Errorf("unknown results scheme %q", s)
}

// NamedGroup is one display category with its results ranked ascending.
type NamedGroup struct {
	Label   string                   `json:"label"`
	Results []models.PlacementResult `json:"results"`
}

// Categorize groups results by scheme. Ages are bucketed with brackets,
// evaluated at raceDate. Empty groups are never returned.
func Categorize(results []models.PlacementResult, scheme Scheme, brackets agegroup.Scheme, raceDate time.Time) []NamedGroup {
	sorted := sortByElapsed(results)

	switch scheme {
	case SchemeGender:
		buckets := make(map[string][]models.PlacementResult)
		for _, r := range sorted {
			g := genderLabel(r.Participant.Gender)
			buckets[g] = append(buckets[g], r)
		}
		return collect(buckets, genderOrder())

	case SchemeAge:
		buckets := make(map[string][]models.PlacementResult)
		for _, r := range sorted {
			a := ageLabel(r, brackets, raceDate)
			buckets[a] = append(buckets[a], r)
		}
		return collect(buckets, ageOrder(brackets))

	case SchemeGenderAge:
		buckets := make(map[string][]models.PlacementResult)
		for _, r := range sorted {
			key := fmt.Sprintf(genderAgeLabelFmt, genderLabel(r.Participant.Gender), ageLabel(r, brackets, raceDate))
			buckets[key] = append(buckets[key], r)
		}
		var order []string
		for _, g := range genderOrder() {
			for _, a := range ageOrder(brackets) {
				order = append(order, fmt.Sprintf(genderAgeLabelFmt, g, a))
			}
		}
		return collect(buckets, order)

	default:
		if len(sorted) == 0 {
			return nil
		}
		return []NamedGroup{{Label: overallLabel, Results: sorted}}
	}
}

func sortByElapsed(results []models.PlacementResult) []models.PlacementResult {
	out := make([]models.PlacementResult, len(results))
	copy(out, results)
	// Stable on OverallPlace keeps the engine's tie policy intact.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ElapsedTime != out[j].ElapsedTime {
			return out[i].ElapsedTime < out[j].ElapsedTime
		}
		return out[i].OverallPlace < out[j].OverallPlace
	})
	return out
}

func genderLabel(g models.Gender) string {
	for _, d := range displayGenders {
		if g == d {
			return string(d)
		}
	}
	return unassignedGender
}

func genderOrder() []string {
	order := make([]string, 0, len(displayGenders)+1)
	for _, g := range displayGenders {
		order = append(order, string(g))
	}
	return append(order, unassignedGender)
}

func ageLabel(r models.PlacementResult, brackets agegroup.Scheme, raceDate time.Time) string {
	if b := brackets.Classify(r.Participant.DateOfBirth, raceDate); b != nil {
		return b.Label
	}
	return unassignedAge
}

func ageOrder(brackets agegroup.Scheme) []string {
	order := make([]string, 0, len(brackets.Brackets)+1)
	for _, b := range brackets.Brackets {
		order = append(order, b.Label)
	}
	return append(order, unassignedAge)
}

func collect(buckets map[string][]models.PlacementResult, order []string) []NamedGroup {
	var groups []NamedGroup
	for _, label := range order {
		if rs := buckets[label]; len(rs) > 0 {
			groups = append(groups, NamedGroup{Label: label, Results: rs})
		}
	}
	return groups
}

// Paginate splits every group into pages of at most pageSize results,
// suffixing labels with the page number when a group spans several pages.
func Paginate(groups []NamedGroup, pageSize int) []NamedGroup {
	if pageSize <= 0 {
		return groups
	}
	var pages []NamedGroup
	for _, g := range groups {
		n := (len(g.Results) + pageSize - 1) / pageSize
		if n <= 1 {
			pages = append(pages, g)
			continue
		}
		for i := 0; i < n; i++ {
			end := (i + 1) * pageSize
			if end > len(g.Results) {
				end = len(g.Results)
			}
			pages = append(pages, NamedGroup{
				Label:   fmt.Sprintf("%s (%d/%d)", g.Label, i+1, n),
				Results: g.Results[i*pageSize : end],
			})
		}
	}
	return pages
}
