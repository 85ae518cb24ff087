package timing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
)

func newTestServer(t *testing.T, f *fixture) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewHandler(NewService(f.app)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL)
}

func TestServiceOverConnect(t *testing.T) {
	f := newFixture(t)
	client := newTestServer(t, f)
	ctx := context.Background()

	_, err := client.RecordFinishTime(ctx, f.race.ID, 5, gunTime.Add(time.Minute))
	if connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Fatalf("unstarted race: code %v (%v)", connect.CodeOf(err), err)
	}

	race, err := client.StartRace(ctx, f.race.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !race.StartTime.Equal(gunTime) {
		t.Fatalf("start_time=%v", race.StartTime)
	}

	ft, err := client.RecordFinishTime(ctx, f.race.ID, 5, gunTime.Add(22*time.Minute))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ft.RaceParticipantID != f.bibs[5] {
		t.Fatalf("finish attached to wrong entry")
	}

	_, err = client.RecordFinishTime(ctx, f.race.ID, 5, gunTime.Add(23*time.Minute))
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) || connectErr.Code() != connect.CodeAlreadyExists {
		t.Fatalf("duplicate: %v", err)
	}
	if connectErr.Message() != "bib number 5 has already finished" {
		t.Fatalf("message=%q", connectErr.Message())
	}

	_, err = client.RecordFinishTime(ctx, f.race.ID, 99, gunTime.Add(23*time.Minute))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Fatalf("unknown bib: code %v", connect.CodeOf(err))
	}

	views, err := client.GetRaceParticipants(ctx, f.race.ID)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(views) != 4 {
		t.Fatalf("participants=%d", len(views))
	}

	placements, err := client.GetPlacements(ctx, f.race.ID, "bib")
	if err != nil {
		t.Fatalf("placements: %v", err)
	}
	if len(placements) != 1 || placements[0].ElapsedTime != 22*time.Minute {
		t.Fatalf("placements=%+v", placements)
	}

	stats, err := client.GetRaceStats(ctx, f.race.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Finished != 1 || stats.StillRacing != 3 {
		t.Fatalf("stats=%+v", stats)
	}

	if err := client.DeleteFinishTime(ctx, ft.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
