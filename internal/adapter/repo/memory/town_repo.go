package memory

import (
	"context"
	"sort"

	"townsim/internal/domain/town"
)

type TownRepo struct {
	store *Store
}

func NewTownRepo(store *Store) TownRepo {
	return TownRepo{store: store}
}

func (r TownRepo) ListByPartition(_ context.Context, partition string) ([]*town.Town, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rows := r.store.towns[partition]
	out := make([]*town.Town, 0, len(rows))
	for _, t := range rows {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r TownRepo) SaveAll(_ context.Context, partition string, towns []*town.Town, removedIDs []string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rows := r.store.towns[partition]
	if rows == nil {
		rows = map[string]*town.Town{}
		r.store.towns[partition] = rows
	}
	for _, id := range removedIDs {
		delete(rows, id)
	}
	for _, t := range towns {
		cp := t.Clone()
		if prev, ok := rows[t.ID]; ok {
			cp.Version = prev.Version + 1
		} else if cp.Version == 0 {
			cp.Version = 1
		}
		rows[t.ID] = cp
	}
	return nil
}
