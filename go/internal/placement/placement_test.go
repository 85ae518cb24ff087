package placement

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/raceday/go/internal/models"
)

var (
	raceDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	start    = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
)

func at(h, m, s int) time.Time {
	return time.Date(2024, 6, 1, h, m, s, 0, time.UTC)
}

func bib(n int) *int { return &n }

func dob(y int, mo time.Month, d int) *time.Time {
	t := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func entry(b int, g models.Gender, birth *time.Time, finish *time.Time) models.RaceParticipantView {
	v := models.RaceParticipantView{
		ID:        uuid.New(),
		BibNumber: bib(b),
		Participant: models.Participant{
			ID:          uuid.New(),
			Gender:      g,
			DateOfBirth: birth,
		},
	}
	if finish != nil {
		v.FinishTime = &models.FinishTime{ID: uuid.New(), RaceParticipantID: v.ID, FinishTime: *finish}
	}
	return v
}

func ptr(t time.Time) *time.Time { return &t }

func byBib(results []models.PlacementResult) map[int]models.PlacementResult {
	out := make(map[int]models.PlacementResult, len(results))
	for _, r := range results {
		out[*r.BibNumber] = r
	}
	return out
}

func TestComputeScenarioRaceMorning(t *testing.T) {
	entries := []models.RaceParticipantView{
		entry(5, models.GenderMale, dob(1990, 1, 1), ptr(at(8, 22, 15))),
	}
	results := Compute(entries, start, raceDate)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.ElapsedTime != 22*time.Minute+15*time.Second {
		t.Fatalf("elapsed=%s", r.ElapsedTime)
	}
	if r.OverallPlace != 1 || r.GenderPlace == nil || *r.GenderPlace != 1 {
		t.Fatalf("bib 5 places: overall=%d gender=%v", r.OverallPlace, r.GenderPlace)
	}

	entries = append(entries, entry(7, models.GenderFemale, nil, ptr(at(8, 20, 0))))
	got := byBib(Compute(entries, start, raceDate))
	if got[7].OverallPlace != 1 || got[7].ElapsedTime != 20*time.Minute {
		t.Fatalf("bib 7: overall=%d elapsed=%s", got[7].OverallPlace, got[7].ElapsedTime)
	}
	if got[5].OverallPlace != 2 {
		t.Fatalf("bib 5 overall=%d, want 2", got[5].OverallPlace)
	}
	if *got[5].GenderPlace != 1 || *got[7].GenderPlace != 1 {
		t.Fatalf("gender places should be independent")
	}
	if got[5].AgeGroup == nil || *got[5].AgeGroup != "30-39" {
		t.Fatalf("bib 5 age group=%v", got[5].AgeGroup)
	}
	if got[7].AgeGroup != nil || got[7].AgeGroupPlace != nil {
		t.Fatalf("bib 7 has no dob, age group should be nil")
	}
}

func TestComputeSkipsNonFinishers(t *testing.T) {
	entries := []models.RaceParticipantView{
		entry(1, models.GenderMale, nil, nil),
		entry(2, models.GenderMale, nil, ptr(at(8, 30, 0))),
		entry(3, models.GenderMale, nil, nil),
	}
	results := Compute(entries, start, raceDate)
	if len(results) != 1 || *results[0].BibNumber != 2 {
		t.Fatalf("got %+v", results)
	}
}

func TestComputeOverallIsContiguousPermutation(t *testing.T) {
	finishes := []time.Time{at(9, 1, 0), at(8, 45, 0), at(8, 59, 30), at(8, 45, 1), at(10, 0, 0), at(8, 31, 0)}
	var entries []models.RaceParticipantView
	for i, f := range finishes {
		entries = append(entries, entry(i+1, models.GenderFemale, nil, ptr(f)))
	}
	results := Compute(entries, start, raceDate)
	if len(results) != len(finishes) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.OverallPlace != i+1 {
			t.Fatalf("position %d has place %d", i, r.OverallPlace)
		}
		if i > 0 && results[i-1].ElapsedTime > r.ElapsedTime {
			t.Fatalf("not ascending at %d", i)
		}
		if want := r.EffectiveFinish.Sub(start); r.ElapsedTime != want {
			t.Fatalf("elapsed %s != %s", r.ElapsedTime, want)
		}
	}
}

func TestComputeUsesAdjustedTime(t *testing.T) {
	e := entry(9, models.GenderMale, nil, ptr(at(8, 50, 0)))
	adjusted := at(8, 40, 0)
	e.FinishTime.AdjustedTime = &adjusted
	other := entry(10, models.GenderMale, nil, ptr(at(8, 45, 0)))

	got := byBib(Compute([]models.RaceParticipantView{other, e}, start, raceDate))
	if got[9].ElapsedTime != 40*time.Minute || got[9].OverallPlace != 1 {
		t.Fatalf("adjusted time not applied: %+v", got[9])
	}
	if !e.FinishTime.FinishTime.Equal(at(8, 50, 0)) {
		t.Fatalf("original capture must be preserved")
	}
}

func TestComputePartitions(t *testing.T) {
	entries := []models.RaceParticipantView{
		entry(1, models.GenderMale, dob(2000, 1, 1), ptr(at(8, 10, 0))),
		entry(2, models.GenderFemale, dob(2000, 1, 1), ptr(at(8, 11, 0))),
		entry(3, models.GenderMale, dob(1970, 1, 1), ptr(at(8, 12, 0))),
		entry(4, "", dob(2000, 1, 1), ptr(at(8, 13, 0))),
		entry(5, "male", nil, ptr(at(8, 14, 0))),
		entry(6, models.GenderOther, dob(1970, 1, 1), ptr(at(8, 15, 0))),
		entry(7, models.GenderMale, dob(2001, 1, 1), ptr(at(8, 16, 0))),
	}
	got := byBib(Compute(entries, start, raceDate))

	wantGender := map[int]int{1: 1, 2: 1, 3: 2, 6: 1, 7: 3}
	for b, want := range wantGender {
		if got[b].GenderPlace == nil || *got[b].GenderPlace != want {
			t.Fatalf("bib %d gender place=%v, want %d", b, got[b].GenderPlace, want)
		}
	}
	for _, b := range []int{4, 5} {
		if got[b].GenderPlace != nil {
			t.Fatalf("bib %d has unrecognized gender, place must be nil", b)
		}
	}

	wantAge := map[int]int{1: 1, 2: 2, 4: 3, 7: 4, 3: 1, 6: 2}
	for b, want := range wantAge {
		if got[b].AgeGroupPlace == nil || *got[b].AgeGroupPlace != want {
			t.Fatalf("bib %d age place=%v, want %d", b, got[b].AgeGroupPlace, want)
		}
	}
	if got[5].AgeGroupPlace != nil {
		t.Fatalf("bib 5 has no dob")
	}
}

func TestComputeTies(t *testing.T) {
	same := at(8, 30, 0)
	entries := []models.RaceParticipantView{
		entry(30, models.GenderMale, nil, ptr(same)),
		entry(10, models.GenderMale, nil, ptr(same)),
		entry(20, models.GenderMale, nil, ptr(same)),
	}
	entries = append(entries, models.RaceParticipantView{
		ID:         uuid.New(),
		FinishTime: &models.FinishTime{ID: uuid.New(), FinishTime: same},
	})

	cases := []struct {
		name   string
		policy TiePolicy
		want   []*int
	}{
		{"input", TieByInputOrder, []*int{bib(30), bib(10), bib(20), nil}},
		{"bib", TieByBib, []*int{bib(10), bib(20), bib(30), nil}},
	}
	for _, c := range cases {
		results := Compute(entries, start, raceDate, WithTiePolicy(c.policy))
		for i, r := range results {
			if (r.BibNumber == nil) != (c.want[i] == nil) || (r.BibNumber != nil && *r.BibNumber != *c.want[i]) {
				t.Fatalf("%s: position %d bib=%v", c.name, i, r.BibNumber)
			}
			if r.OverallPlace != i+1 {
				t.Fatalf("%s: position %d place=%d", c.name, i, r.OverallPlace)
			}
		}
	}
}

func TestComputeFlagsNegativeElapsed(t *testing.T) {
	entries := []models.RaceParticipantView{
		entry(1, models.GenderMale, nil, ptr(at(7, 59, 0))),
		entry(2, models.GenderMale, nil, ptr(at(8, 5, 0))),
	}
	results := Compute(entries, start, raceDate)
	if results[0].ElapsedTime != -time.Minute || !results[0].Anomaly {
		t.Fatalf("negative elapsed must be kept and flagged: %+v", results[0])
	}
	if results[0].OverallPlace != 1 {
		t.Fatalf("anomalous finish still ranks")
	}
	if a := Anomalies(results); len(a) != 1 || *a[0].BibNumber != 1 {
		t.Fatalf("anomalies=%+v", a)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	entries := []models.RaceParticipantView{
		entry(1, models.GenderMale, dob(1980, 2, 2), ptr(at(8, 40, 0))),
		entry(2, models.GenderFemale, dob(1990, 3, 3), ptr(at(8, 40, 0))),
		entry(3, models.GenderMale, dob(1985, 4, 4), ptr(at(8, 35, 0))),
	}
	a := Compute(entries, start, raceDate)
	b := Compute(entries, start, raceDate)
	for i := range a {
		if a[i].RaceParticipantID != b[i].RaceParticipantID || a[i].OverallPlace != b[i].OverallPlace {
			t.Fatalf("non-deterministic at %d", i)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00:00"},
		{22*time.Minute + 15*time.Second, "0:22:15"},
		{3*time.Hour + 4*time.Minute + 5*time.Second + 900*time.Millisecond, "3:04:05"},
		{-90 * time.Second, "-0:01:30"},
	}
	for _, c := range cases {
		if got := FormatElapsed(c.d); got != c.want {
			t.Fatalf("FormatElapsed(%s)=%q, want %q", c.d, got, c.want)
		}
	}
}
