package ports

import (
	"context"
	"time"

	"townsim/internal/domain/contract"
	"townsim/internal/domain/town"
)

type TownRepository interface {
	ListByPartition(ctx context.Context, partition string) ([]*town.Town, error)
	// SaveAll upserts towns and deletes removedIDs for one partition.
	SaveAll(ctx context.Context, partition string, towns []*town.Town, removedIDs []string) error
}

type ContractRepository interface {
	ListContracts(ctx context.Context, partition string) ([]*contract.Contract, error)
	SaveContracts(ctx context.Context, partition string, contracts []*contract.Contract) error
	ListPayments(ctx context.Context, partition string) ([]contract.Payment, error)
	SavePayments(ctx context.Context, partition string, payments []contract.Payment) error
}

// ClockRepository keeps a partition's tick counter across restarts, so
// absolute tick deadlines stay meaningful. A partition that was never saved
// loads as tick 0.
type ClockRepository interface {
	LoadTick(ctx context.Context, partition string) (uint64, error)
	SaveTick(ctx context.Context, partition string, tick uint64) error
}

type Event struct {
	Partition  string         `json:"partition"`
	TownID     string         `json:"town_id"`
	Type       string         `json:"type"`
	Tick       uint64         `json:"tick"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

type EventRepository interface {
	Append(ctx context.Context, events []Event) error
	ListByTown(ctx context.Context, townID string, limit int) ([]Event, error)
}

// TxManager runs fn so that every repository call made with the ctx it
// receives commits or rolls back together.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
