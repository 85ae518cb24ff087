package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/api"
	"github.com/mcdev12/raceday/go/internal/config"
	"github.com/mcdev12/raceday/go/internal/gateway"
	"github.com/mcdev12/raceday/go/internal/notify"
	"github.com/mcdev12/raceday/go/internal/results"
	"github.com/mcdev12/raceday/go/internal/timing"
)

func main() {
	configPath := flag.String("config", "raceday.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	clock := clockwork.NewRealClock()
	timingClient := timing.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.Results.TimingURL)

	cache := results.NewCache(timingClient, clock, cfg.Results.CacheMaxAge)
	view := results.DefaultView()
	view.PageSize = cfg.Results.PageSize
	feed := results.NewFeed(cache, clock, results.FeedConfig{Interval: cfg.Results.RefreshInterval, View: view})

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	svc := gateway.NewService(connections, cache, feed)

	handlers := []gateway.EventHandler{svc.HandleEvent}
	if cfg.Telegram.Token != "" {
		bot, err := notify.NewBot(cfg.Telegram.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create telegram bot")
		}
		handlers = append(handlers, notify.NewAnnouncer(bot, cfg.Telegram.ChatID, cache).HandleEvent)
		log.Info().Int64("chat_id", cfg.Telegram.ChatID).Msg("telegram announcer enabled")
	}

	consumerCfg := gateway.DefaultJetStreamConsumerConfig()
	consumerCfg.URL = cfg.NATS.URL
	consumerCfg.StreamName = cfg.NATS.StreamName
	consumerCfg.ConsumerName = cfg.NATS.Consumer
	consumerCfg.SubjectFilter = cfg.NATS.SubjectPrefix + ".>"
	consumer, err := gateway.NewEventConsumer(consumerCfg, handlers...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	defer consumer.Stop()

	router := api.NewRouter(cache, timingClient, clock)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.Handle("/api/", router)
	mux.Handle("GET /health", router)

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedHeaders: []string{"*"},
	})
	server := &http.Server{
		Addr:    cfg.Server.GatewayAddr,
		Handler: c.Handler(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := svc.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service stopped with error")
		}
	}()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer stopped with error")
		}
	}()
	go func() {
		log.Info().Str("addr", server.Addr).Msg("results gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shut down server")
	}
	log.Info().Msg("results gateway stopped")
}
