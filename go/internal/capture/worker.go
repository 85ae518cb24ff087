package capture

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type WorkerConfig struct {
	SweepInterval time.Duration // fallback resend of pending items
	PurgeInterval time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		SweepInterval: 10 * time.Second,
		PurgeInterval: time.Second,
	}
}

// Worker keeps a queue in sync: it follows the monitor, periodically
// resends pending items and purges expired synced items.
type Worker struct {
	queue   *Queue
	monitor *Monitor
	clock   clockwork.Clock
	cfg     WorkerConfig
}

func NewWorker(queue *Queue, monitor *Monitor, clock clockwork.Clock, cfg WorkerConfig) *Worker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	def := DefaultWorkerConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = def.PurgeInterval
	}
	return &Worker{queue: queue, monitor: monitor, clock: clock, cfg: cfg}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if w.monitor != nil {
		w.monitor.OnChange(w.queue.SetOnline)
		go w.monitor.Run(ctx)
	}

	sweep := w.clock.NewTicker(w.cfg.SweepInterval)
	defer sweep.Stop()
	purge := w.clock.NewTicker(w.cfg.PurgeInterval)
	defer purge.Stop()

	log.Info().
		Str("race_id", w.queue.raceID.String()).
		Dur("sweep_interval", w.cfg.SweepInterval).
		Msg("capture worker started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("capture worker stopping")
			return
		case <-sweep.Chan():
			if w.queue.Online() {
				w.queue.Sweep()
			}
		case <-purge.Chan():
			if _, err := w.queue.Purge(ctx); err != nil {
				log.Error().Err(err).Msg("failed to purge synced captures")
			}
		}
	}
}
