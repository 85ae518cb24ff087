package timing

import (
	"context"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/raceday/go/internal/models"
)

// Client calls the timing service. Errors are *connect.Error values carrying
// the server's code and message.
type Client struct {
	getRace             *connect.Client[RaceRequest, models.Race]
	createRace          *connect.Client[CreateRaceRequest, models.Race]
	startRace           *connect.Client[RaceRequest, models.Race]
	createParticipant   *connect.Client[CreateParticipantRequest, models.Participant]
	getRaceParticipants *connect.Client[RaceRequest, GetRaceParticipantsResponse]
	addParticipant      *connect.Client[AddParticipantRequest, models.RaceParticipant]
	assignBib           *connect.Client[AssignBibRequest, models.RaceParticipant]
	removeParticipant   *connect.Client[RemoveParticipantRequest, Empty]
	recordFinishTime    *connect.Client[RecordFinishTimeRequest, models.FinishTime]
	recordFinishTimes   *connect.Client[RecordFinishTimesRequest, RecordFinishTimesResponse]
	updateFinishTime    *connect.Client[UpdateFinishTimeRequest, models.FinishTime]
	deleteFinishTime    *connect.Client[DeleteFinishTimeRequest, Empty]
	getPlacements       *connect.Client[GetPlacementsRequest, GetPlacementsResponse]
	getRaceStats        *connect.Client[RaceRequest, RaceStats]
}

// NewClient creates a client for the timing service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{WithJSONCodec()}, opts...)
	return &Client{
		getRace:             connect.NewClient[RaceRequest, models.Race](httpClient, baseURL+GetRaceProcedure, opts...),
		createRace:          connect.NewClient[CreateRaceRequest, models.Race](httpClient, baseURL+CreateRaceProcedure, opts...),
		startRace:           connect.NewClient[RaceRequest, models.Race](httpClient, baseURL+StartRaceProcedure, opts...),
		createParticipant:   connect.NewClient[CreateParticipantRequest, models.Participant](httpClient, baseURL+CreateParticipantProcedure, opts...),
		getRaceParticipants: connect.NewClient[RaceRequest, GetRaceParticipantsResponse](httpClient, baseURL+GetRaceParticipantsProcedure, opts...),
		addParticipant:      connect.NewClient[AddParticipantRequest, models.RaceParticipant](httpClient, baseURL+AddParticipantToRaceProcedure, opts...),
		assignBib:           connect.NewClient[AssignBibRequest, models.RaceParticipant](httpClient, baseURL+AssignBibProcedure, opts...),
		removeParticipant:   connect.NewClient[RemoveParticipantRequest, Empty](httpClient, baseURL+RemoveParticipantFromRaceProcedure, opts...),
		recordFinishTime:    connect.NewClient[RecordFinishTimeRequest, models.FinishTime](httpClient, baseURL+RecordFinishTimeProcedure, opts...),
		recordFinishTimes:   connect.NewClient[RecordFinishTimesRequest, RecordFinishTimesResponse](httpClient, baseURL+RecordFinishTimesProcedure, opts...),
		updateFinishTime:    connect.NewClient[UpdateFinishTimeRequest, models.FinishTime](httpClient, baseURL+UpdateFinishTimeProcedure, opts...),
		deleteFinishTime:    connect.NewClient[DeleteFinishTimeRequest, Empty](httpClient, baseURL+DeleteFinishTimeProcedure, opts...),
		getPlacements:       connect.NewClient[GetPlacementsRequest, GetPlacementsResponse](httpClient, baseURL+GetPlacementsProcedure, opts...),
		getRaceStats:        connect.NewClient[RaceRequest, RaceStats](httpClient, baseURL+GetRaceStatsProcedure, opts...),
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	return call(ctx, c.getRace, &RaceRequest{RaceID: raceID})
}

func (c *Client) CreateRace(ctx context.Context, req CreateRaceRequest) (*models.Race, error) {
	return call(ctx, c.createRace, &req)
}

func (c *Client) StartRace(ctx context.Context, raceID uuid.UUID) (*models.Race, error) {
	return call(ctx, c.startRace, &RaceRequest{RaceID: raceID})
}

func (c *Client) CreateParticipant(ctx context.Context, req CreateParticipantRequest) (*models.Participant, error) {
	return call(ctx, c.createParticipant, &req)
}

func (c *Client) GetRaceParticipants(ctx context.Context, raceID uuid.UUID) ([]models.RaceParticipantView, error) {
	resp, err := call(ctx, c.getRaceParticipants, &RaceRequest{RaceID: raceID})
	if err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

func (c *Client) AddParticipantToRace(ctx context.Context, req AddParticipantRequest) (*models.RaceParticipant, error) {
	return call(ctx, c.addParticipant, &req)
}

func (c *Client) AssignBib(ctx context.Context, req AssignBibRequest) (*models.RaceParticipant, error) {
	return call(ctx, c.assignBib, &req)
}

func (c *Client) RemoveParticipantFromRace(ctx context.Context, raceParticipantID uuid.UUID) error {
	_, err := call(ctx, c.removeParticipant, &RemoveParticipantRequest{RaceParticipantID: raceParticipantID})
	return err
}

// RecordFinishTime submits one bib with the capture timestamp.
func (c *Client) RecordFinishTime(ctx context.Context, raceID uuid.UUID, bib int, ts time.Time) (*models.FinishTime, error) {
	return call(ctx, c.recordFinishTime, &RecordFinishTimeRequest{RaceID: raceID, BibNumber: bib, Timestamp: &ts})
}

func (c *Client) RecordFinishTimes(ctx context.Context, req RecordFinishTimesRequest) (*RecordFinishTimesResponse, error) {
	return call(ctx, c.recordFinishTimes, &req)
}

func (c *Client) UpdateFinishTime(ctx context.Context, req UpdateFinishTimeRequest) (*models.FinishTime, error) {
	return call(ctx, c.updateFinishTime, &req)
}

func (c *Client) DeleteFinishTime(ctx context.Context, finishTimeID uuid.UUID) error {
	_, err := call(ctx, c.deleteFinishTime, &DeleteFinishTimeRequest{FinishTimeID: finishTimeID})
	return err
}

func (c *Client) GetPlacements(ctx context.Context, raceID uuid.UUID, tie string) ([]models.PlacementResult, error) {
	resp, err := call(ctx, c.getPlacements, &GetPlacementsRequest{RaceID: raceID, Tie: tie})
	if err != nil {
		return nil, err
	}
	return resp.Placements, nil
}

func (c *Client) GetRaceStats(ctx context.Context, raceID uuid.UUID) (*RaceStats, error) {
	return call(ctx, c.getRaceStats, &RaceRequest{RaceID: raceID})
}
