package memory

import (
	"context"

	"townsim/internal/app/ports"
)

type EventRepo struct {
	store *Store
}

func NewEventRepo(store *Store) EventRepo {
	return EventRepo{store: store}
}

func (r EventRepo) Append(_ context.Context, events []ports.Event) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, e := range events {
		key := e.TownID
		if key == "" {
			key = "global"
		}
		r.store.events[key] = append(r.store.events[key], e)
	}
	return nil
}

// ListByTown returns the newest limit events, oldest first.
func (r EventRepo) ListByTown(_ context.Context, townID string, limit int) ([]ports.Event, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	events := r.store.events[townID]
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]ports.Event(nil), events...), nil
}
