package timing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/raceday/go/internal/models"
	"github.com/mcdev12/raceday/go/internal/placement"
)

const recentFinishLimit = 10

// TimingRepository defines what the timing app layer needs from the record store
type TimingRepository interface {
	GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error)
	CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error)
	StartRace(ctx context.Context, raceID uuid.UUID, start time.Time) (*models.Race, error)
	CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error)
	GetParticipant(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error)
	GetRaceParticipantByBib(ctx context.Context, raceID uuid.UUID, bib int) (*models.RaceParticipantView, error)
	AddParticipantToRace(ctx context.Context, req AddParticipantRequest) (*models.RaceParticipant, error)
	AssignBib(ctx context.Context, raceParticipantID uuid.UUID, bib int) (*models.RaceParticipant, error)
	RemoveParticipantFromRace(ctx context.Context, raceParticipantID uuid.UUID) error
	InsertFinishTime(ctx context.Context, entry models.RaceParticipantView, ts time.Time) (*models.FinishTime, error)
	UpdateFinishTime(ctx context.Context, finishTimeID uuid.UUID, adjusted time.Time) (*models.FinishTime, error)
	DeleteFinishTime(ctx context.Context, finishTimeID uuid.UUID) error
}

// App handles race timing business logic
type App struct {
	repo  TimingRepository
	clock clockwork.Clock
}

// NewApp creates a new timing App
func NewApp(repo TimingRepository, clock clockwork.Clock) *App {
	return &App{
		repo:  repo,
		clock: clock,
	}
}

// GetRace retrieves a race by ID
func (a *App) GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	race, err := a.repo.GetRace(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	return race, nil
}

// CreateRace creates a new, unstarted race
func (a *App) CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if req.RaceDate.IsZero() {
		return nil, fmt.Errorf("%w: race_date is required", ErrInvalidRequest)
	}

	race, err := a.repo.CreateRace(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create race: %w", err)
	}

	log.Info().Str("race_id", race.ID.String()).Str("name", race.Name).Msg("race created")
	return race, nil
}

// StartRace records the wall-clock start. It is one-way: a started race
// cannot be started again.
func (a *App) StartRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	race, err := a.repo.StartRace(ctx, raceID, a.clock.Now())
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("race_id", raceID.String()).
		Time("start_time", *race.StartTime).
		Msg("race started")
	return race, nil
}

// CreateParticipant registers a person
func (a *App) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error) {
	if req.Gender != "" && !req.Gender.Recognized() {
		log.Warn().Str("gender", string(req.Gender)).Msg("unrecognized gender, participant will not receive a gender place")
	}

	p, err := a.repo.CreateParticipant(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}
	return p, nil
}

// GetRaceParticipants lists every entry of a race with its finish, if any
func (a *App) GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error) {
	views, err := a.repo.GetRaceParticipants(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get race participants: %w", err)
	}
	return views, nil
}

// AddParticipantToRace enters a participant, rejecting duplicate bibs and
// duplicate registrations
func (a *App) AddParticipantToRace(ctx context.Context, req AddParticipantRequest) (*models.RaceParticipant, error) {
	if req.RaceID == uuid.Nil || req.ParticipantID == uuid.Nil {
		return nil, fmt.Errorf("%w: race_id and participant_id are required", ErrInvalidRequest)
	}
	if req.BibNumber != nil && *req.BibNumber <= 0 {
		return nil, fmt.Errorf("%w: bib_number must be greater than 0", ErrInvalidRequest)
	}

	if _, err := a.repo.GetRace(ctx, req.RaceID); err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	if _, err := a.repo.GetParticipant(ctx, req.ParticipantID); err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}

	rp, err := a.repo.AddParticipantToRace(ctx, req)
	if err != nil {
		if errors.Is(err, ErrBibTaken) {
			return nil, fmt.Errorf("bib number %d: %w", *req.BibNumber, ErrBibTaken)
		}
		return nil, err
	}

	log.Info().
		Str("race_id", req.RaceID.String()).
		Str("participant_id", req.ParticipantID.String()).
		Msg("participant added to race")
	return rp, nil
}

// AssignBib sets or changes the bib of a race entry
func (a *App) AssignBib(ctx context.Context, req AssignBibRequest) (*models.RaceParticipant, error) {
	if req.BibNumber <= 0 {
		return nil, fmt.Errorf("%w: bib_number must be greater than 0", ErrInvalidRequest)
	}

	rp, err := a.repo.AssignBib(ctx, req.RaceParticipantID, req.BibNumber)
	if err != nil {
		if errors.Is(err, ErrBibTaken) {
			return nil, fmt.Errorf("bib number %d: %w", req.BibNumber, ErrBibTaken)
		}
		return nil, err
	}
	return rp, nil
}

// RemoveParticipantFromRace deletes a race entry and its finish
func (a *App) RemoveParticipantFromRace(ctx context.Context, raceParticipantID uuid.UUID) error {
	if err := a.repo.RemoveParticipantFromRace(ctx, raceParticipantID); err != nil {
		return err
	}
	log.Info().Str("race_participant_id", raceParticipantID.String()).Msg("participant removed from race")
	return nil
}

// RecordFinishTime captures one finish. A bib unknown in the race or one
// that already has a finish is rejected; the existing record is never
// overwritten.
func (a *App) RecordFinishTime(ctx context.Context, req RecordFinishTimeRequest) (*models.FinishTime, error) {
	if err := a.validateRecordFinishTimeRequest(req); err != nil {
		return nil, err
	}

	race, err := a.repo.GetRace(ctx, req.RaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	if !race.Started() {
		return nil, ErrRaceNotStarted
	}

	ts := a.clock.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	entry, err := a.repo.GetRaceParticipantByBib(ctx, req.RaceID, req.BibNumber)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("bib number %d %w", req.BibNumber, ErrBibNotFound)
		}
		return nil, fmt.Errorf("failed to find bib: %w", err)
	}
	if entry.Finished() {
		return nil, fmt.Errorf("bib number %d %w", req.BibNumber, ErrAlreadyFinished)
	}

	ft, err := a.repo.InsertFinishTime(ctx, *entry, ts)
	if err != nil {
		if errors.Is(err, ErrAlreadyFinished) {
			return nil, fmt.Errorf("bib number %d %w", req.BibNumber, ErrAlreadyFinished)
		}
		return nil, fmt.Errorf("failed to record finish time: %w", err)
	}

	elapsed := ft.FinishTime.Sub(*race.StartTime)
	evt := log.Info()
	if elapsed < 0 {
		evt = log.Warn()
	}
	evt.Str("race_id", req.RaceID.String()).
		Int("bib", req.BibNumber).
		Str("elapsed", placement.FormatElapsed(elapsed)).
		Msg("finish recorded")
	return ft, nil
}

// RecordFinishTimes splits a multi-bib capture into independent attempts.
// Every bib gets its own outcome; one failure never affects the others.
func (a *App) RecordFinishTimes(ctx context.Context, req RecordFinishTimesRequest) (*RecordFinishTimesResponse, error) {
	if len(req.BibNumbers) == 0 {
		return nil, fmt.Errorf("%w: bib_numbers is required", ErrInvalidRequest)
	}

	ts := a.clock.Now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	resp := &RecordFinishTimesResponse{Outcomes: make([]BibOutcome, 0, len(req.BibNumbers))}
	for _, bib := range req.BibNumbers {
		out := BibOutcome{BibNumber: bib}
		ft, err := a.RecordFinishTime(ctx, RecordFinishTimeRequest{
			RaceID:    req.RaceID,
			BibNumber: bib,
			Timestamp: &ts,
		})
		if err != nil {
			out.Code = errorCode(err).String()
			out.Error = err.Error()
		} else {
			out.FinishTime = ft
		}
		resp.Outcomes = append(resp.Outcomes, out)
	}
	return resp, nil
}

// UpdateFinishTime records a correction in adjusted_time
func (a *App) UpdateFinishTime(ctx context.Context, req UpdateFinishTimeRequest) (*models.FinishTime, error) {
	if req.FinishTimeID == uuid.Nil {
		return nil, fmt.Errorf("%w: finish_time_id is required", ErrInvalidRequest)
	}
	if req.AdjustedTime.IsZero() {
		return nil, fmt.Errorf("%w: adjusted_time is required", ErrInvalidRequest)
	}

	ft, err := a.repo.UpdateFinishTime(ctx, req.FinishTimeID, req.AdjustedTime)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("finish_time_id", ft.ID.String()).
		Time("finish_time", ft.FinishTime).
		Time("adjusted_time", req.AdjustedTime).
		Msg("finish time adjusted")
	return ft, nil
}

// DeleteFinishTime removes a finish, reopening the bib
func (a *App) DeleteFinishTime(ctx context.Context, finishTimeID uuid.UUID) error {
	if err := a.repo.DeleteFinishTime(ctx, finishTimeID); err != nil {
		return err
	}
	log.Info().Str("finish_time_id", finishTimeID.String()).Msg("finish time deleted")
	return nil
}

// GetPlacements ranks the race's finishers. An unstarted race has none.
func (a *App) GetPlacements(ctx context.Context, raceID uuid.UUID, tie placement.TiePolicy) ([]models.PlacementResult, error) {
	race, err := a.repo.GetRace(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	if !race.Started() {
		return []models.PlacementResult{}, nil
	}

	views, err := a.GetRaceParticipants(ctx, raceID)
	if err != nil {
		return nil, err
	}
	return placement.Compute(views, *race.StartTime, race.RaceDate, placement.WithTiePolicy(tie)), nil
}

// GetRaceStats counts entrants and finishers and lists the latest finishes
func (a *App) GetRaceStats(ctx context.Context, raceID uuid.UUID) (*RaceStats, error) {
	race, err := a.repo.GetRace(ctx, raceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get race: %w", err)
	}
	views, err := a.GetRaceParticipants(ctx, raceID)
	if err != nil {
		return nil, err
	}

	stats := &RaceStats{RaceID: raceID, Total: len(views), Recent: []RecentFinish{}}
	var finished []models.RaceParticipantView
	for _, v := range views {
		if v.Finished() {
			finished = append(finished, v)
		}
	}
	stats.Finished = len(finished)
	stats.StillRacing = stats.Total - stats.Finished

	sort.SliceStable(finished, func(i, j int) bool {
		return finished[i].FinishTime.Effective().After(finished[j].FinishTime.Effective())
	})
	if len(finished) > recentFinishLimit {
		finished = finished[:recentFinishLimit]
	}
	for _, v := range finished {
		rf := RecentFinish{
			RaceParticipantID: v.ID,
			BibNumber:         v.BibNumber,
			Name:              v.Participant.DisplayName(),
			FinishTime:        v.FinishTime.Effective(),
		}
		if race.Started() {
			rf.Elapsed = placement.FormatElapsed(rf.FinishTime.Sub(*race.StartTime))
		}
		stats.Recent = append(stats.Recent, rf)
	}
	return stats, nil
}

// Validation methods

func (a *App) validateRecordFinishTimeRequest(req RecordFinishTimeRequest) error {
	if req.RaceID == uuid.Nil {
		return fmt.Errorf("%w: race_id is required", ErrInvalidRequest)
	}
	if req.BibNumber <= 0 {
		return fmt.Errorf("%w: bib_number must be greater than 0", ErrInvalidRequest)
	}
	return nil
}
