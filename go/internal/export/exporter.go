package export

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/placement"
	"github.com/mcdev12/raceday/go/internal/results"
)

var header = []interface{}{"Place", "Overall", "Bib", "Name", "Gender", "Age Group", "Time", "Note"}

// Exporter replaces a sheet's contents with a rendered leaderboard.
type Exporter struct {
	values ValuesWriter
}

func NewExporter(values ValuesWriter) *Exporter {
	return &Exporter{values: values}
}

// Export clears sheet and writes snap to it. It returns the number of rows
// written, including titles and headers.
func (e *Exporter) Export(ctx context.Context, sheet string, snap results.Snapshot) (int, error) {
	rows := Rows(snap)
	if err := e.values.Clear(ctx, sheet+"!A:Z"); err != nil {
		return 0, fmt.Errorf("failed to clear sheet %s: %w", sheet, err)
	}
	if err := e.values.Update(ctx, sheet+"!A1", rows); err != nil {
		return 0, fmt.Errorf("failed to write sheet %s: %w", sheet, err)
	}

	log.Info().
		Str("race_id", snap.RaceID.String()).
		Str("sheet", sheet).
		Int("groups", len(snap.Groups)).
		Int("rows", len(rows)).
		Msg("results exported")
	return len(rows), nil
}

// Rows renders a snapshot as sheet rows: a title row, then per group a label
// row, the column header, the results and a blank separator.
func Rows(snap results.Snapshot) [][]interface{} {
	rows := [][]interface{}{
		{snap.RaceName, fmt.Sprintf("%d of %d finished", snap.Finishers, snap.Entrants)},
	}
	if !snap.Started {
		return append(rows, []interface{}{"Race not started"})
	}

	for _, g := range snap.Groups {
		rows = append(rows, []interface{}{g.Label}, header)
		for i, r := range g.Results {
			bib := ""
			if r.BibNumber != nil {
				bib = fmt.Sprint(*r.BibNumber)
			}
			age := ""
			if r.AgeGroup != nil {
				age = *r.AgeGroup
			}
			note := ""
			if r.Anomaly {
				note = "finish before start"
			}
			rows = append(rows, []interface{}{
				i + 1,
				r.OverallPlace,
				bib,
				r.Participant.DisplayName(),
				string(r.Participant.Gender),
				age,
				placement.FormatElapsed(r.ElapsedTime),
				note,
			})
		}
		rows = append(rows, []interface{}{})
	}
	return rows
}
