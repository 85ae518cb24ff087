package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/raceday/go/internal/timing"
)

type Services struct {
	Timing *timing.Service
}

func setupServices(pool *pgxpool.Pool, clock clockwork.Clock) *Services {
	// Database layer → Repository layer → App layer → Service layer
	timingRepo := timing.NewRepository(pool)
	timingApp := timing.NewApp(timingRepo, clock)
	timingService := timing.NewService(timingApp)

	return &Services{
		Timing: timingService,
	}
}
