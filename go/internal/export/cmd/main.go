package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/agegroup"
	"github.com/mcdev12/raceday/go/internal/config"
	"github.com/mcdev12/raceday/go/internal/export"
	"github.com/mcdev12/raceday/go/internal/placement"
	"github.com/mcdev12/raceday/go/internal/results"
	"github.com/mcdev12/raceday/go/internal/timing"
)

func main() {
	configPath := flag.String("config", "raceday.yaml", "path to config file")
	sheet := flag.String("sheet", "Results", "sheet (tab) name to overwrite")
	scheme := flag.String("scheme", string(results.SchemeGenderAge), "overall, gender, age or gender-age")
	brackets := flag.String("brackets", agegroup.Standard.Name, "standard or leaderboard")
	tie := flag.String("tie", string(placement.TieByInputOrder), "input or bib")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	raceID, err := uuid.Parse(cfg.Capture.RaceID)
	if err != nil {
		log.Fatal().Err(err).Str("race_id", cfg.Capture.RaceID).Msg("RACE_ID must be a valid UUID")
	}

	view := results.DefaultView()
	if view.Scheme, err = results.ParseScheme(*scheme); err != nil {
		log.Fatal().Err(err).Msg("invalid scheme")
	}
	var ok bool
	if view.Brackets, ok = agegroup.SchemeByName(*brackets); !ok {
		log.Fatal().Str("brackets", *brackets).Msg("unknown age brackets")
	}
	view.Tie = placement.ParseTiePolicy(*tie)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	clock := clockwork.NewRealClock()
	client := timing.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.Results.TimingURL)
	data, err := results.NewCache(client, clock, 0).Load(ctx, raceID)
	if err != nil {
		log.Fatal().Err(err).Str("race_id", raceID.String()).Msg("failed to load race")
	}

	sheets, err := export.NewSheetsClient(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create sheets client")
	}
	n, err := export.NewExporter(sheets).Export(ctx, *sheet, results.Build(data, view, clock.Now()))
	if err != nil {
		log.Fatal().Err(err).Msg("export failed")
	}
	log.Info().
		Str("spreadsheet_id", sheets.SpreadsheetID()).
		Int("rows", n).
		Msg("export complete")
}
