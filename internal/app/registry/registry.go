package registry

import (
	"context"
	"sort"
	"strings"

	"townsim/internal/app/ports"
	"townsim/internal/domain/boundary"
	"townsim/internal/domain/town"
)

// Registry owns the towns of one world partition. It is only touched from
// the partition's tick goroutine.
type Registry struct {
	partition string
	boundary  boundary.Service
	towns     map[string]*town.Town
	removed   map[string]struct{}
	pending   []string
	dirty     bool
}

func New(partition string, b boundary.Service) *Registry {
	return &Registry{
		partition: partition,
		boundary:  b,
		towns:     map[string]*town.Town{},
		removed:   map[string]struct{}{},
	}
}

func (r *Registry) Partition() string {
	return r.partition
}

func (r *Registry) Boundary() boundary.Service {
	return r.boundary
}

func (r *Registry) Add(t *town.Town) error {
	if t == nil || strings.TrimSpace(t.ID) == "" {
		return town.Internal("cannot register a town without an id")
	}
	if _, gone := r.removed[t.ID]; gone {
		return town.State(town.CodeTownNotFound, "town %s was removed and cannot be restored", t.ID)
	}
	if _, exists := r.towns[t.ID]; exists {
		return town.Internal("town %s is already registered", t.ID)
	}
	t.Partition = r.partition
	r.towns[t.ID] = t
	r.MarkDirty()
	return nil
}

func (r *Registry) Get(id string) (*town.Town, error) {
	t, ok := r.towns[id]
	if !ok {
		return nil, town.NotFound(town.CodeTownNotFound, "town %s not found", id)
	}
	return t, nil
}

// Remove drops a town whose anchor was destroyed. Removed ids are never
// accepted again.
func (r *Registry) Remove(id string) (*town.Town, error) {
	t, ok := r.towns[id]
	if !ok {
		return nil, town.NotFound(town.CodeTownNotFound, "town %s not found", id)
	}
	delete(r.towns, id)
	r.removed[id] = struct{}{}
	r.pending = append(r.pending, id)
	r.MarkDirty()
	return t, nil
}

func (r *Registry) Len() int {
	return len(r.towns)
}

// All returns the towns ordered by id.
func (r *Registry) All() []*town.Town {
	out := make([]*town.Town, 0, len(r.towns))
	for _, t := range r.towns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllTowns is the persistence view: id -> town.
func (r *Registry) AllTowns() map[string]*town.Town {
	out := make(map[string]*town.Town, len(r.towns))
	for id, t := range r.towns {
		out[id] = t
	}
	return out
}

func (r *Registry) FindByName(name string) (*town.Town, bool) {
	name = strings.TrimSpace(name)
	for _, t := range r.All() {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return nil, false
}

// TownAt returns the town whose displayed territory contains p, preferring
// the closest anchor.
func (r *Registry) TownAt(p town.Position) (*town.Town, bool) {
	var best *town.Town
	bestDist := 0.0
	for _, t := range r.All() {
		if !r.boundary.Contains(t, p) {
			continue
		}
		d := t.Position.DistanceSquared(p)
		if best == nil || d < bestDist {
			best, bestDist = t, d
		}
	}
	return best, best != nil
}

// Near returns towns within radius of p by anchor distance, closest first.
func (r *Registry) Near(p town.Position, radius int) []*town.Town {
	limit := float64(radius) * float64(radius)
	out := make([]*town.Town, 0)
	for _, t := range r.All() {
		if t.Position.DistanceSquared(p) <= limit {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position.DistanceSquared(p) < out[j].Position.DistanceSquared(p)
	})
	return out
}

func (r *Registry) CheckPlacement(p town.Position) error {
	return r.boundary.CheckPlacement(p, r.All())
}

func (r *Registry) CheckExpansion(t *town.Town, proposedPopulation int) error {
	return r.boundary.CheckExpansion(t, proposedPopulation, r.All())
}

func (r *Registry) Violations() []boundary.Violation {
	return boundary.Violations(r.All())
}

func (r *Registry) MarkDirty() {
	r.dirty = true
}

func (r *Registry) IsDirty() bool {
	return r.dirty
}

func (r *Registry) ClearDirty() {
	r.dirty = false
	r.pending = nil
}

// Load replaces the registry contents with the persisted towns. Corrupt
// records abort the load with a TOWN_ERROR naming the record.
func (r *Registry) Load(ctx context.Context, repo ports.TownRepository) error {
	rows, err := repo.ListByPartition(ctx, r.partition)
	if err != nil {
		return town.Internal("load partition %s: %v", r.partition, err)
	}
	towns := make(map[string]*town.Town, len(rows))
	for i, t := range rows {
		if err := checkRecord(t); err != nil {
			return town.Internal("load partition %s: record %d: %v", r.partition, i, err)
		}
		if _, dup := towns[t.ID]; dup {
			return town.Internal("load partition %s: duplicate town id %s", r.partition, t.ID)
		}
		normalize(t, r.partition)
		towns[t.ID] = t
	}
	r.towns = towns
	r.removed = map[string]struct{}{}
	r.ClearDirty()
	return nil
}

func (r *Registry) Save(ctx context.Context, repo ports.TownRepository) error {
	if err := repo.SaveAll(ctx, r.partition, r.All(), append([]string(nil), r.pending...)); err != nil {
		return err
	}
	r.ClearDirty()
	return nil
}

func checkRecord(t *town.Town) error {
	if t == nil {
		return town.Internal("nil town")
	}
	if strings.TrimSpace(t.ID) == "" {
		return town.Internal("town %q has no id", t.Name)
	}
	if t.Population < 0 || t.TouristCount < 0 || t.TotalVisitors < 0 || t.PendingVisitors < 0 {
		return town.Internal("town %s has negative counters", t.ID)
	}
	for kind, n := range t.Resources {
		if n < 0 {
			return town.Internal("town %s has negative %s", t.ID, kind)
		}
	}
	return nil
}

func normalize(t *town.Town, partition string) {
	t.Partition = partition
	if t.Resources == nil {
		t.Resources = map[string]int{}
	}
	if t.VisitorsByOrigin == nil {
		t.VisitorsByOrigin = map[string]int{}
	}
	if t.PersonalStorage == nil {
		t.PersonalStorage = map[string]map[string]int{}
	}
	if t.SearchRadius == 0 {
		t.SearchRadius = town.DefaultSearchRadius
	}
}
