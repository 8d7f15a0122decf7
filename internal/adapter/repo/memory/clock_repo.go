package memory

import "context"

type ClockRepo struct {
	store *Store
}

func NewClockRepo(store *Store) ClockRepo {
	return ClockRepo{store: store}
}

func (r ClockRepo) LoadTick(_ context.Context, partition string) (uint64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.ticks[partition], nil
}

func (r ClockRepo) SaveTick(_ context.Context, partition string, tick uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.ticks[partition] = tick
	return nil
}
