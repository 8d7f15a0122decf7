package memory

import (
	"sync"

	"townsim/internal/app/ports"
	"townsim/internal/domain/contract"
	"townsim/internal/domain/town"
)

// Store keeps deep copies of everything written to it, keyed by partition.
type Store struct {
	mu        sync.RWMutex
	txMu      sync.Mutex
	towns     map[string]map[string]*town.Town
	contracts map[string]map[string]*contract.Contract
	payments  map[string]map[string]contract.Payment
	events    map[string][]ports.Event
	ticks     map[string]uint64
}

func NewStore() *Store {
	return &Store{
		towns:     make(map[string]map[string]*town.Town),
		contracts: make(map[string]map[string]*contract.Contract),
		payments:  make(map[string]map[string]contract.Payment),
		events:    make(map[string][]ports.Event),
		ticks:     make(map[string]uint64),
	}
}

// SeedTown stores t as if it had been saved earlier.
func (s *Store) SeedTown(t *town.Town) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.towns[t.Partition] == nil {
		s.towns[t.Partition] = map[string]*town.Town{}
	}
	s.towns[t.Partition][t.ID] = t.Clone()
}
