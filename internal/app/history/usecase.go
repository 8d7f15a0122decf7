package history

import (
	"context"
	"strings"

	"townsim/internal/app/ports"
	"townsim/internal/domain/town"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

type UseCase struct {
	Events ports.EventRepository
}

func (u UseCase) Execute(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.TownID) == "" {
		return Response{}, town.NotFound(town.CodeTownNotFound, "town id is required")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	events, err := u.Events.ListByTown(ctx, req.TownID, limit)
	if err != nil {
		return Response{}, err
	}
	events = filterByTimeWindow(events, req.OccurredFrom, req.OccurredTo)
	latest := summarize(events)
	latest.TownID = req.TownID
	return Response{Events: events, Latest: latest}, nil
}

func filterByTimeWindow(events []ports.Event, from, to int64) []ports.Event {
	if from <= 0 && to <= 0 {
		return events
	}
	out := make([]ports.Event, 0, len(events))
	for _, evt := range events {
		ts := evt.OccurredAt.Unix()
		if from > 0 && ts < from {
			continue
		}
		if to > 0 && ts > to {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// summarize folds events oldest to newest; each field keeps the last value
// any event reported for it.
func summarize(events []ports.Event) Summary {
	s := Summary{}
	for _, evt := range events {
		if v, ok := num(evt.Payload["population"]); ok {
			s.Population = int(v)
		}
		if v, ok := num(evt.Payload["tourist_count"]); ok {
			s.TouristCount = int(v)
		}
		if v, ok := num(evt.Payload["total_visitors"]); ok {
			s.TotalVisitors = int64(v)
		}
	}
	return s
}

func num(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
