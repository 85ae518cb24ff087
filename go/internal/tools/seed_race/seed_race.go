package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/raceday/go/internal/dbconfig"
	"github.com/mcdev12/raceday/go/internal/models"
	"github.com/mcdev12/raceday/go/internal/timing"
)

// Entrant mirrors one participant in the JSON snapshot
type Entrant struct {
	FirstName   string        `json:"first_name"`
	LastName    string        `json:"last_name"`
	Gender      models.Gender `json:"gender"`
	DateOfBirth *time.Time    `json:"date_of_birth,omitempty"`
	Email       string        `json:"email,omitempty"`
	BibNumber   *int          `json:"bib_number,omitempty"`
}

type RaceFile struct {
	Name         string    `json:"name"`
	RaceDate     time.Time `json:"race_date"`
	Participants []Entrant `json:"participants"`
}

func main() {
	path := flag.String("file", "go/internal/assets/race.json", "race JSON snapshot")
	flag.Parse()

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var race RaceFile
	if err := json.Unmarshal(data, &race); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Writes go through the app so registrations land in the outbox too
	app := timing.NewApp(timing.NewRepository(pool), clockwork.NewRealClock())

	created, err := app.CreateRace(ctx, timing.CreateRaceRequest{Name: race.Name, RaceDate: race.RaceDate})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create race: %v\n", err)
		os.Exit(1)
	}

	// 3) Register and count
	var (
		total      = len(race.Participants)
		registered int
		skipped    int
		errs       int
	)

	for _, e := range race.Participants {
		p, err := app.CreateParticipant(ctx, timing.CreateParticipantRequest{
			FirstName:   e.FirstName,
			LastName:    e.LastName,
			Gender:      e.Gender,
			DateOfBirth: e.DateOfBirth,
			Email:       e.Email,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating participant %s %s: %v\n", e.FirstName, e.LastName, err)
			errs++
			continue
		}

		_, err = app.AddParticipantToRace(ctx, timing.AddParticipantRequest{
			RaceID:        created.ID,
			ParticipantID: p.ID,
			BibNumber:     e.BibNumber,
		})
		switch {
		case errors.Is(err, timing.ErrBibTaken), errors.Is(err, timing.ErrAlreadyRegistered):
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", p.DisplayName(), err)
			skipped++
		case err != nil:
			fmt.Fprintf(os.Stderr, "error registering %s: %v\n", p.DisplayName(), err)
			errs++
		default:
			registered++
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Race seed complete: race %s, %d total, %d registered, %d skipped, %d errors\n",
		created.ID, total, registered, skipped, errs,
	)
}
