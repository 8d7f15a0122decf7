package history

import (
	"context"
	"testing"
	"time"

	"townsim/internal/app/ports"
	"townsim/internal/domain/town"
)

func TestUseCase_SummarizesLatestTownState(t *testing.T) {
	repo := &fakeRepo{events: []ports.Event{
		{Type: "town_updated", TownID: "a", OccurredAt: time.Unix(1, 0), Payload: map[string]any{"population": 10.0, "tourist_count": 2.0}},
		{Type: "visit_recorded", TownID: "a", OccurredAt: time.Unix(2, 0), Payload: map[string]any{"population": 11, "total_visitors": int64(51)}},
	}}

	out, err := UseCase{Events: repo}.Execute(context.Background(), Request{TownID: "a"})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.Latest.Population != 11 || out.Latest.TouristCount != 2 || out.Latest.TotalVisitors != 51 {
		t.Fatalf("unexpected summary %+v", out.Latest)
	}
	if len(out.Events) != 2 {
		t.Fatalf("expected 2 events")
	}
	if repo.limit != DefaultLimit {
		t.Fatalf("expected default limit, got %d", repo.limit)
	}
}

func TestUseCase_FiltersByTimeWindowAndClampsLimit(t *testing.T) {
	repo := &fakeRepo{events: []ports.Event{
		{Type: "a", OccurredAt: time.Unix(100, 0)},
		{Type: "b", OccurredAt: time.Unix(200, 0)},
		{Type: "c", OccurredAt: time.Unix(300, 0)},
	}}
	out, err := UseCase{Events: repo}.Execute(context.Background(), Request{TownID: "a", Limit: 10000, OccurredFrom: 150, OccurredTo: 250})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if len(out.Events) != 1 || out.Events[0].Type != "b" {
		t.Fatalf("unexpected events %+v", out.Events)
	}
	if repo.limit != MaxLimit {
		t.Fatalf("expected clamped limit, got %d", repo.limit)
	}
}

func TestUseCase_RejectsEmptyTownID(t *testing.T) {
	if _, err := (UseCase{}).Execute(context.Background(), Request{}); !town.HasCode(err, town.CodeTownNotFound) {
		t.Fatalf("expected TOWN_NOT_FOUND, got %v", err)
	}
}

type fakeRepo struct {
	events []ports.Event
	limit  int
}

func (r *fakeRepo) Append(context.Context, []ports.Event) error {
	return nil
}

func (r *fakeRepo) ListByTown(_ context.Context, _ string, limit int) ([]ports.Event, error) {
	r.limit = limit
	return r.events, nil
}
