package registry

import (
	"sort"
	"sync"

	"townsim/internal/domain/boundary"
	"townsim/internal/domain/town"
)

// Registries is the explicit per-partition context owned by the tick host.
type Registries struct {
	mu       sync.RWMutex
	boundary boundary.Service
	byID     map[string]*Registry
}

func NewRegistries(b boundary.Service) *Registries {
	return &Registries{boundary: b, byID: map[string]*Registry{}}
}

// Init returns the partition's registry, creating an empty one when absent.
func (r *Registries) Init(partition string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.byID[partition]; ok {
		return reg
	}
	reg := New(partition, r.boundary)
	r.byID[partition] = reg
	return reg
}

func (r *Registries) Get(partition string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byID[partition]
	if !ok {
		return nil, town.State(town.CodePartitionNotLoaded, "partition %s is not loaded", partition)
	}
	return reg, nil
}

// Teardown forgets the partition's registry; it does not persist anything.
func (r *Registries) Teardown(partition string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, partition)
}

func (r *Registries) Partitions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
