package timing

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/raceday/go/internal/models"
	"github.com/mcdev12/raceday/go/internal/placement"
)

// TimingServiceName is the fully-qualified name of the timing service.
const TimingServiceName = "raceday.timing.v1.TimingService"

// Procedure paths of the timing service.
const (
	GetRaceProcedure                   = "/" + TimingServiceName + "/GetRace"
	CreateRaceProcedure                = "/" + TimingServiceName + "/CreateRace"
	StartRaceProcedure                 = "/" + TimingServiceName + "/StartRace"
	CreateParticipantProcedure         = "/" + TimingServiceName + "/CreateParticipant"
	GetRaceParticipantsProcedure       = "/" + TimingServiceName + "/GetRaceParticipants"
	AddParticipantToRaceProcedure      = "/" + TimingServiceName + "/AddParticipantToRace"
	AssignBibProcedure                 = "/" + TimingServiceName + "/AssignBib"
	RemoveParticipantFromRaceProcedure = "/" + TimingServiceName + "/RemoveParticipantFromRace"
	RecordFinishTimeProcedure          = "/" + TimingServiceName + "/RecordFinishTime"
	RecordFinishTimesProcedure         = "/" + TimingServiceName + "/RecordFinishTimes"
	UpdateFinishTimeProcedure          = "/" + TimingServiceName + "/UpdateFinishTime"
	DeleteFinishTimeProcedure          = "/" + TimingServiceName + "/DeleteFinishTime"
	GetPlacementsProcedure             = "/" + TimingServiceName + "/GetPlacements"
	GetRaceStatsProcedure              = "/" + TimingServiceName + "/GetRaceStats"
)

// TimingApp defines what the service layer needs from the timing application
type TimingApp interface {
	GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error)
	CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error)
	StartRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error)
	CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error)
	GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error)
	AddParticipantToRace(ctx context.Context, req AddParticipantRequest) (*models.RaceParticipant, error)
	AssignBib(ctx context.Context, req AssignBibRequest) (*models.RaceParticipant, error)
	RemoveParticipantFromRace(ctx context.Context, raceParticipantID uuid.UUID) error
	RecordFinishTime(ctx context.Context, req RecordFinishTimeRequest) (*models.FinishTime, error)
	RecordFinishTimes(ctx context.Context, req RecordFinishTimesRequest) (*RecordFinishTimesResponse, error)
	UpdateFinishTime(ctx context.Context, req UpdateFinishTimeRequest) (*models.FinishTime, error)
	DeleteFinishTime(ctx context.Context, finishTimeID uuid.UUID) error
	GetPlacements(ctx context.Context, raceID uuid.UUID, tie placement.TiePolicy) ([]models.PlacementResult, error)
	GetRaceStats(ctx context.Context, raceID uuid.UUID) (*RaceStats, error)
}

// Service exposes the timing app over connect
type Service struct {
	app TimingApp
}

// NewService creates a new timing service
func NewService(app TimingApp) *Service {
	return &Service{app: app}
}

// NewHandler builds the HTTP handler for every procedure and returns the
// path prefix to mount it on.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{WithJSONCodec()}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetRaceProcedure, connect.NewUnaryHandler(GetRaceProcedure, svc.GetRace, opts...))
	mux.Handle(CreateRaceProcedure, connect.NewUnaryHandler(CreateRaceProcedure, svc.CreateRace, opts...))
	mux.Handle(StartRaceProcedure, connect.NewUnaryHandler(StartRaceProcedure, svc.StartRace, opts...))
	mux.Handle(CreateParticipantProcedure, connect.NewUnaryHandler(CreateParticipantProcedure, svc.CreateParticipant, opts...))
	mux.Handle(GetRaceParticipantsProcedure, connect.NewUnaryHandler(GetRaceParticipantsProcedure, svc.GetRaceParticipants, opts...))
	mux.Handle(AddParticipantToRaceProcedure, connect.NewUnaryHandler(AddParticipantToRaceProcedure, svc.AddParticipantToRace, opts...))
	mux.Handle(AssignBibProcedure, connect.NewUnaryHandler(AssignBibProcedure, svc.AssignBib, opts...))
	mux.Handle(RemoveParticipantFromRaceProcedure, connect.NewUnaryHandler(RemoveParticipantFromRaceProcedure, svc.RemoveParticipantFromRace, opts...))
	mux.Handle(RecordFinishTimeProcedure, connect.NewUnaryHandler(RecordFinishTimeProcedure, svc.RecordFinishTime, opts...))
	mux.Handle(RecordFinishTimesProcedure, connect.NewUnaryHandler(RecordFinishTimesProcedure, svc.RecordFinishTimes, opts...))
	mux.Handle(UpdateFinishTimeProcedure, connect.NewUnaryHandler(UpdateFinishTimeProcedure, svc.UpdateFinishTime, opts...))
	mux.Handle(DeleteFinishTimeProcedure, connect.NewUnaryHandler(DeleteFinishTimeProcedure, svc.DeleteFinishTime, opts...))
	mux.Handle(GetPlacementsProcedure, connect.NewUnaryHandler(GetPlacementsProcedure, svc.GetPlacements, opts...))
	mux.Handle(GetRaceStatsProcedure, connect.NewUnaryHandler(GetRaceStatsProcedure, svc.GetRaceStats, opts...))
	return "/" + TimingServiceName + "/", mux
}

// GetRace retrieves a race
func (s *Service) GetRace(ctx context.Context, req *connect.Request[RaceRequest]) (*connect.Response[models.Race], error) {
	race, err := s.app.GetRace(ctx, req.Msg.RaceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(race), nil
}

// CreateRace creates a race
func (s *Service) CreateRace(ctx context.Context, req *connect.Request[CreateRaceRequest]) (*connect.Response[models.Race], error) {
	race, err := s.app.CreateRace(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(race), nil
}

// StartRace starts the race clock
func (s *Service) StartRace(ctx context.Context, req *connect.Request[RaceRequest]) (*connect.Response[models.Race], error) {
	race, err := s.app.StartRace(ctx, req.Msg.RaceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(race), nil
}

// CreateParticipant registers a person
func (s *Service) CreateParticipant(ctx context.Context, req *connect.Request[CreateParticipantRequest]) (*connect.Response[models.Participant], error) {
	p, err := s.app.CreateParticipant(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(p), nil
}

// GetRaceParticipants lists a race's entries
func (s *Service) GetRaceParticipants(ctx context.Context, req *connect.Request[RaceRequest]) (*connect.Response[GetRaceParticipantsResponse], error) {
	views, err := s.app.GetRaceParticipants(ctx, req.Msg.RaceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if views == nil {
		views = []models.RaceParticipantView{}
	}
	return connect.NewResponse(&GetRaceParticipantsResponse{Participants: views}), nil
}

// AddParticipantToRace enters a participant in a race
func (s *Service) AddParticipantToRace(ctx context.Context, req *connect.Request[AddParticipantRequest]) (*connect.Response[models.RaceParticipant], error) {
	rp, err := s.app.AddParticipantToRace(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(rp), nil
}

// AssignBib sets an entry's bib
func (s *Service) AssignBib(ctx context.Context, req *connect.Request[AssignBibRequest]) (*connect.Response[models.RaceParticipant], error) {
	rp, err := s.app.AssignBib(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(rp), nil
}

// RemoveParticipantFromRace deletes an entry
func (s *Service) RemoveParticipantFromRace(ctx context.Context, req *connect.Request[RemoveParticipantRequest]) (*connect.Response[Empty], error) {
	if err := s.app.RemoveParticipantFromRace(ctx, req.Msg.RaceParticipantID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// RecordFinishTime captures one finish
func (s *Service) RecordFinishTime(ctx context.Context, req *connect.Request[RecordFinishTimeRequest]) (*connect.Response[models.FinishTime], error) {
	ft, err := s.app.RecordFinishTime(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(ft), nil
}

// RecordFinishTimes captures several bibs at once
func (s *Service) RecordFinishTimes(ctx context.Context, req *connect.Request[RecordFinishTimesRequest]) (*connect.Response[RecordFinishTimesResponse], error) {
	resp, err := s.app.RecordFinishTimes(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

// UpdateFinishTime adjusts a finish
func (s *Service) UpdateFinishTime(ctx context.Context, req *connect.Request[UpdateFinishTimeRequest]) (*connect.Response[models.FinishTime], error) {
	ft, err := s.app.UpdateFinishTime(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(ft), nil
}

// DeleteFinishTime removes a finish
func (s *Service) DeleteFinishTime(ctx context.Context, req *connect.Request[DeleteFinishTimeRequest]) (*connect.Response[Empty], error) {
	if err := s.app.DeleteFinishTime(ctx, req.Msg.FinishTimeID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// GetPlacements ranks the finishers
func (s *Service) GetPlacements(ctx context.Context, req *connect.Request[GetPlacementsRequest]) (*connect.Response[GetPlacementsResponse], error) {
	tie := placement.ParseTiePolicy(req.Msg.Tie)
	results, err := s.app.GetPlacements(ctx, req.Msg.RaceID, tie)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetPlacementsResponse{Placements: results}), nil
}

// GetRaceStats summarizes a race
func (s *Service) GetRaceStats(ctx context.Context, req *connect.Request[RaceRequest]) (*connect.Response[RaceStats], error) {
	stats, err := s.app.GetRaceStats(ctx, req.Msg.RaceID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(stats), nil
}

// errorCode maps app errors onto connect codes. Semantic rejections get a
// specific code; anything unrecognized is Internal.
func errorCode(err error) connect.Code {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return connect.CodeInvalidArgument
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBibNotFound):
		return connect.CodeNotFound
	case errors.Is(err, ErrAlreadyFinished), errors.Is(err, ErrBibTaken), errors.Is(err, ErrAlreadyRegistered):
		return connect.CodeAlreadyExists
	case errors.Is(err, ErrRaceNotStarted), errors.Is(err, ErrRaceAlreadyStarted):
		return connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	}
	return connect.CodeInternal
}

func toConnectError(err error) error {
	return connect.NewError(errorCode(err), err)
}
