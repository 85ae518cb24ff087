package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/events"
	"github.com/mcdev12/raceday/go/internal/results"
)

// Service pushes live leaderboards to display clients. Timing events
// invalidate the race cache; the feed rebuilds and every connection on the
// race receives the new snapshot.
type Service struct {
	connections *ConnectionManager
	cache       *results.Cache
	feed        *results.Feed

	snapshots   <-chan results.Snapshot
	unsubscribe func()
}

func NewService(connections *ConnectionManager, cache *results.Cache, feed *results.Feed) *Service {
	connections.OnRaceActivity(feed.Watch, feed.Unwatch)
	snapshots, unsubscribe := feed.Subscribe()
	return &Service{
		connections: connections,
		cache:       cache,
		feed:        feed,
		snapshots:   snapshots,
		unsubscribe: unsubscribe,
	}
}

// Start runs the connection manager, the feed and snapshot fan-out until ctx
// is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting results gateway service")

	go s.connections.Start(ctx)
	go func() {
		if err := s.feed.Run(ctx); err != nil {
			log.Error().Err(err).Msg("results feed failed")
		}
	}()

	defer s.unsubscribe()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("results gateway service shutting down")
			return nil
		case snap, ok := <-s.snapshots:
			if !ok {
				return nil
			}
			msg, err := snapshotMessage(snap)
			if err != nil {
				log.Error().Err(err).Msg("failed to encode snapshot")
				continue
			}
			s.connections.BroadcastToRace(snap.RaceID, msg)
		}
	}
}

// HandleEvent is the EventHandler for timing events.
func (s *Service) HandleEvent(ctx context.Context, env events.Envelope) error {
	raceID, err := uuid.Parse(env.RaceID)
	if err != nil {
		return fmt.Errorf("parse race ID: %w", err)
	}

	s.cache.Invalidate(raceID)
	s.connections.BroadcastToRace(raceID, &Message{
		ID:        env.EventID,
		Type:      MessageEvent,
		EventType: env.EventType,
		RaceID:    env.RaceID,
		Timestamp: env.Timestamp,
		Data:      env.Payload,
	})

	log.Info().
		Str("event_id", env.EventID).
		Str("race_id", env.RaceID).
		Str("event_type", env.EventType).
		Msg("event relayed to displays")
	return nil
}

func snapshotMessage(snap results.Snapshot) (*Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      MessageSnapshot,
		RaceID:    snap.RaceID.String(),
		Timestamp: snap.GeneratedAt,
		Data:      data,
	}, nil
}

// HandleRaceConnection upgrades GET /ws/races/{id}. The client receives the
// current snapshot first, then every update.
func (s *Service) HandleRaceConnection(w http.ResponseWriter, r *http.Request) {
	raceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid race id", http.StatusBadRequest)
		return
	}

	snap, err := s.feed.Current(r.Context(), raceID)
	if err != nil {
		if connect.CodeOf(err) == connect.CodeNotFound {
			http.Error(w, "race not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("race_id", raceID.String()).Msg("failed to load race for display")
		http.Error(w, "results unavailable", http.StatusBadGateway)
		return
	}
	initial, err := snapshotMessage(snap)
	if err != nil {
		http.Error(w, "results unavailable", http.StatusInternalServerError)
		return
	}

	if err := s.connections.UpgradeConnection(w, r, raceID, initial); err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
	}
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.connections.Stats())
}

// RegisterRoutes mounts the websocket and stats routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/races/{id}", s.HandleRaceConnection)
	mux.HandleFunc("GET /ws/stats", s.handleStats)
	log.Info().Msg("results gateway routes registered")
}
