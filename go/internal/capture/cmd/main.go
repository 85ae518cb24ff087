package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/capture"
	"github.com/mcdev12/raceday/go/internal/config"
	"github.com/mcdev12/raceday/go/internal/timing"
)

func main() {
	configPath := flag.String("config", "raceday.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// log to stderr so the console prompt stays readable
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	raceID, err := uuid.Parse(cfg.Capture.RaceID)
	if err != nil {
		log.Fatal().Err(err).Str("race_id", cfg.Capture.RaceID).Msg("RACE_ID must be a race UUID")
	}

	db, err := capture.OpenSQLite(cfg.Capture.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open capture database")
	}
	defer db.Close()
	store, err := capture.NewSQLiteStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("prepare capture database")
	}

	clock := clockwork.NewRealClock()
	httpClient := &http.Client{Timeout: cfg.Capture.SubmitTimeout}
	client := timing.NewClient(httpClient, cfg.Capture.TimingURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queue, err := capture.Open(ctx, raceID, store, client, clock, capture.Config{
		Retention:     cfg.Capture.Retention,
		SubmitTimeout: cfg.Capture.SubmitTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("open capture queue")
	}
	defer queue.Close()

	monitor := capture.NewMonitor(httpClient, cfg.Capture.TimingURL, clock, cfg.Capture.ProbeInterval)
	worker := capture.NewWorker(queue, monitor, clock, capture.WorkerConfig{SweepInterval: cfg.Capture.SweepInterval})
	go worker.Run(ctx)

	log.Info().
		Str("race_id", raceID.String()).
		Str("timing_url", cfg.Capture.TimingURL).
		Str("db_path", cfg.Capture.DBPath).
		Msg("capture console ready")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// outcomes restored from disk were already reported in an earlier run
	reporter := capture.NewReporter()
	reporter.Settled(queue.Items())

	fmt.Println("Enter bib numbers (space or comma separated). Commands: status, dismiss <id>, quit")
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !handleLine(ctx, queue, clock, strings.TrimSpace(line)) {
				return
			}
		case <-queue.Changed():
			for _, it := range reporter.Settled(queue.Items()) {
				fmt.Println(capture.FormatOutcome(it))
			}
		}
	}
}

// handleLine runs one console command. It returns false on quit.
func handleLine(ctx context.Context, queue *capture.Queue, clock clockwork.Clock, line string) bool {
	// capture time is the moment Enter was pressed
	now := clock.Now()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	switch fields[0] {
	case "quit", "exit":
		return false
	case "status":
		printStatus(queue)
		return true
	case "dismiss":
		if len(fields) != 2 {
			fmt.Println("usage: dismiss <item id>")
			return true
		}
		id, err := uuid.Parse(fields[1])
		if err != nil {
			fmt.Println("invalid item id")
			return true
		}
		if err := queue.Dismiss(ctx, id); err != nil {
			fmt.Println(err)
		}
		return true
	}

	bibs, err := parseBibs(line)
	if err != nil {
		fmt.Println(err)
		return true
	}
	items, err := queue.Submit(ctx, bibs, now)
	if err != nil {
		fmt.Println(err)
		return true
	}
	fmt.Printf("captured %d bib(s) at %s\n", len(items), now.Format("15:04:05"))
	return true
}

func parseBibs(line string) ([]int, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	bibs := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bib number", f)
		}
		bibs = append(bibs, n)
	}
	return bibs, nil
}

func printStatus(queue *capture.Queue) {
	st := queue.Status()
	conn := "offline"
	if queue.Online() {
		conn = "online"
	}
	fmt.Printf("%s, %d pending\n", conn, st.Pending)
	for _, it := range st.Errors {
		fmt.Println("  " + capture.FormatOutcome(it))
	}
	for _, it := range st.Recent {
		fmt.Println("  " + capture.FormatOutcome(it))
	}
}
