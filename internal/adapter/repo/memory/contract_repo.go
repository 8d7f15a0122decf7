package memory

import (
	"context"
	"sort"

	"townsim/internal/domain/contract"
)

type ContractRepo struct {
	store *Store
}

func NewContractRepo(store *Store) ContractRepo {
	return ContractRepo{store: store}
}

func (r ContractRepo) ListContracts(_ context.Context, partition string) ([]*contract.Contract, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rows := r.store.contracts[partition]
	out := make([]*contract.Contract, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveContracts replaces the partition's contract set.
func (r ContractRepo) SaveContracts(_ context.Context, partition string, contracts []*contract.Contract) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rows := make(map[string]*contract.Contract, len(contracts))
	for _, c := range contracts {
		rows[c.ID] = c.Clone()
	}
	r.store.contracts[partition] = rows
	return nil
}

func (r ContractRepo) ListPayments(_ context.Context, partition string) ([]contract.Payment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	rows := r.store.payments[partition]
	out := make([]contract.Payment, 0, len(rows))
	for _, p := range rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r ContractRepo) SavePayments(_ context.Context, partition string, payments []contract.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rows := make(map[string]contract.Payment, len(payments))
	for _, p := range payments {
		rows[p.ID] = p
	}
	r.store.payments[partition] = rows
	return nil
}
