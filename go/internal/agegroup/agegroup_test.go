package agegroup

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAge(t *testing.T) {
	cases := []struct {
		dob, ref time.Time
		want     int
	}{
		{date(1990, 1, 1), date(2024, 1, 1), 34},
		{date(1990, 6, 15), date(2024, 6, 14), 33},
		{date(1990, 6, 15), date(2024, 6, 15), 34},
		{date(2000, 12, 31), date(2024, 1, 1), 23},
		{date(2000, 2, 29), date(2023, 2, 28), 22},
		{date(2000, 2, 29), date(2023, 3, 1), 23},
	}
	for _, c := range cases {
		if got := Age(c.dob, c.ref); got != c.want {
			t.Fatalf("Age(%s,%s)=%d, want %d", c.dob.Format("2006-01-02"), c.ref.Format("2006-01-02"), got, c.want)
		}
	}
}

func TestClassifyStandardBoundaries(t *testing.T) {
	ref := date(2024, 5, 1)
	cases := []struct {
		age  int
		want string
	}{
		{0, "0-12"}, {12, "0-12"},
		{13, "13-17"}, {17, "13-17"},
		{18, "18-29"}, {29, "18-29"},
		{30, "30-39"}, {39, "30-39"},
		{40, "40-49"}, {49, "40-49"},
		{50, "50-59"}, {59, "50-59"},
		{60, "60+"}, {104, "60+"},
	}
	for _, c := range cases {
		dob := date(2024-c.age, 5, 1)
		got := Classify(&dob, ref)
		if got == nil || got.Label != c.want {
			t.Fatalf("age %d: got %v, want %s", c.age, got, c.want)
		}
	}
}

func TestClassifyEighteenOnRaceDay(t *testing.T) {
	dob := date(2006, 9, 14)
	got := Classify(&dob, date(2024, 9, 14))
	if got == nil || got.Label != "18-29" {
		t.Fatalf("got %v, want 18-29", got)
	}
	got = Classify(&dob, date(2024, 9, 13))
	if got == nil || got.Label != "13-17" {
		t.Fatalf("day before birthday: got %v, want 13-17", got)
	}
}

func TestClassifyUsesReferenceDate(t *testing.T) {
	dob := date(1995, 3, 10)
	race := date(2024, 3, 9)
	if got := Classify(&dob, race); got == nil || got.Label != "18-29" {
		t.Fatalf("got %v, want 18-29 as of race date", got)
	}
}

func TestClassifyMissingOrFutureDOB(t *testing.T) {
	if got := Classify(nil, date(2024, 1, 1)); got != nil {
		t.Fatalf("nil dob: got %v", got)
	}
	dob := date(2025, 1, 1)
	if got := Classify(&dob, date(2024, 1, 1)); got != nil {
		t.Fatalf("future dob: got %v", got)
	}
}

func TestSchemesAreTotalAndNonOverlapping(t *testing.T) {
	for _, s := range []Scheme{Standard, Leaderboard} {
		for age := 0; age <= 120; age++ {
			hits := 0
			for _, b := range s.Brackets {
				if b.Contains(age) {
					hits++
				}
			}
			if hits != 1 {
				t.Fatalf("%s: age %d matched %d brackets", s.Name, age, hits)
			}
		}
	}
}

func TestSchemeByName(t *testing.T) {
	if s, ok := SchemeByName("leaderboard"); !ok || s.Name != "leaderboard" {
		t.Fatalf("leaderboard not resolved")
	}
	if s, ok := SchemeByName("bogus"); ok || s.Name != "standard" {
		t.Fatalf("unknown scheme should fall back to standard")
	}
}
