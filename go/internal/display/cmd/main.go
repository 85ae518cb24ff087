package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/config"
	"github.com/mcdev12/raceday/go/internal/display"
	"github.com/mcdev12/raceday/go/internal/gateway"
	"github.com/mcdev12/raceday/go/internal/results"
)

const reconnectDelay = 3 * time.Second

func main() {
	configPath := flag.String("config", "raceday.yaml", "path to config file")
	gatewayURL := flag.String("gateway", "ws://localhost:8081", "results gateway websocket base URL")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	raceID, err := uuid.Parse(cfg.Capture.RaceID)
	if err != nil {
		log.Fatal().Err(err).Str("race_id", cfg.Capture.RaceID).Msg("RACE_ID must be a valid UUID")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rotator := results.NewRotator(clockwork.NewRealClock(), cfg.Results.RotationInterval)
	rotator.SetAuto(true)
	board := display.NewBoard(rotator)
	go rotator.Run(ctx)

	frames := make(chan gateway.Message, 16)
	go stream(ctx, *gatewayURL+"/ws/races/"+raceID.String(), frames)

	commands := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			commands <- strings.TrimSpace(scanner.Text())
		}
		close(commands)
	}()

	fmt.Println("commands: n (next), p (previous), a (toggle auto), q (quit)")
	auto := true
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-frames:
			changed, err := board.Apply(msg)
			if err != nil {
				log.Error().Err(err).Msg("bad frame from gateway")
				continue
			}
			if changed {
				draw(board)
			}
		case <-rotator.Changed():
			draw(board)
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			switch cmd {
			case "n":
				rotator.Next()
			case "p":
				rotator.Prev()
			case "a":
				auto = !auto
				rotator.SetAuto(auto)
				log.Info().Bool("auto", auto).Msg("rotation mode changed")
			case "q":
				return
			}
		}
	}
}

func draw(board *display.Board) {
	fmt.Print("\033[H\033[2J")
	if err := board.Render(os.Stdout); err != nil {
		log.Error().Err(err).Msg("failed to render board")
	}
}

// stream keeps a websocket open to the gateway, reconnecting until ctx ends.
func stream(ctx context.Context, url string, frames chan<- gateway.Message) {
	for ctx.Err() == nil {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("gateway unreachable, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}
		log.Info().Str("url", url).Msg("connected to results gateway")

		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Msg("gateway connection lost")
				break
			}
			var msg gateway.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Error().Err(err).Msg("failed to decode gateway frame")
				continue
			}
			select {
			case frames <- msg:
			case <-ctx.Done():
			}
		}
		conn.Close()
	}
}
