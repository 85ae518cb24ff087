package results

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/raceday/go/internal/agegroup"
	"github.com/mcdev12/raceday/go/internal/models"
	"github.com/mcdev12/raceday/go/internal/placement"
)

// View describes how a leaderboard is rendered.
type View struct {
	Scheme   Scheme
	Brackets agegroup.Scheme
	Tie      placement.TiePolicy
	PageSize int
}

// DefaultView is the public leaderboard default.
func DefaultView() View {
	return View{
		Scheme:   SchemeOverall,
		Brackets: agegroup.Leaderboard,
		Tie:      placement.TieByInputOrder,
	}
}

// RaceData is one read of a race and its entries from the record store.
type RaceData struct {
	Race      models.Race
	Entries   []models.RaceParticipantView
	FetchedAt time.Time
}

// Snapshot is a rendered leaderboard for one race.
type Snapshot struct {
	RaceID      uuid.UUID                `json:"race_id"`
	RaceName    string                   `json:"race_name"`
	Started     bool                     `json:"started"`
	StartTime   *time.Time               `json:"start_time,omitempty"`
	Scheme      Scheme                   `json:"scheme"`
	Brackets    string                   `json:"brackets"`
	Finishers   int                      `json:"finishers"`
	Entrants    int                      `json:"entrants"`
	Placements  []models.PlacementResult `json:"placements"`
	Groups      []NamedGroup             `json:"groups"`
	Anomalies   []models.PlacementResult `json:"anomalies,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
}

// Build renders data through view. An unstarted race yields no placements.
func Build(data RaceData, view View, now time.Time) Snapshot {
	snap := Snapshot{
		RaceID:      data.Race.ID,
		RaceName:    data.Race.Name,
		Started:     data.Race.Started(),
		StartTime:   data.Race.StartTime,
		Scheme:      view.Scheme,
		Brackets:    view.Brackets.Name,
		Entrants:    len(data.Entries),
		Placements:  []models.PlacementResult{},
		Groups:      []NamedGroup{},
		GeneratedAt: now,
	}
	if !data.Race.Started() {
		return snap
	}

	if placements := placement.Compute(data.Entries, *data.Race.StartTime, data.Race.RaceDate,
		placement.WithTiePolicy(view.Tie)); placements != nil {
		snap.Placements = placements
	}
	snap.Finishers = len(snap.Placements)
	snap.Anomalies = placement.Anomalies(snap.Placements)
	if groups := Paginate(Categorize(snap.Placements, view.Scheme, view.Brackets, data.Race.RaceDate), view.PageSize); groups != nil {
		snap.Groups = groups
	}
	return snap
}
