package gormrepo

import (
	"context"
	"fmt"
	"time"

	"townsim/internal/adapter/repo/gorm/model"
	"townsim/internal/domain/contract"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ContractRepo struct {
	db *gorm.DB
}

func NewContractRepo(db *gorm.DB) ContractRepo {
	return ContractRepo{db: db}
}

func (r ContractRepo) ListContracts(ctx context.Context, partition string) ([]*contract.Contract, error) {
	rows := []model.Contract{}
	err := dbFor(ctx, r.db).
		Where(&model.Contract{Partition: partition}).
		Clauses(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "id"}}}}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*contract.Contract, 0, len(rows))
	for _, row := range rows {
		c := &contract.Contract{
			ID:                row.ID,
			Kind:              contract.Kind(row.Kind),
			Partition:         row.Partition,
			IssuerTownID:      row.IssuerTownID,
			ResourceID:        row.ResourceID,
			Quantity:          int(row.Quantity),
			CreatedTick:       uint64(row.CreatedTick),
			ExpiryTick:        uint64(row.ExpiryTick),
			Bids:              map[string]int{},
			State:             contract.State(row.State),
			AcceptedBy:        row.AcceptedBy,
			Reclaimed:         row.Reclaimed,
			Price:             int(row.Price),
			CurrentBid:        int(row.CurrentBid),
			HighestBidder:     row.HighestBidder,
			DestinationTownID: row.DestinationTownID,
			Reward:            int(row.Reward),
		}
		if err := unmarshalJSON(row.Bids, &c.Bids); err != nil {
			return nil, fmt.Errorf("decode contract %s bids: %w", row.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// SaveContracts replaces the partition's contract set.
func (r ContractRepo) SaveContracts(ctx context.Context, partition string, contracts []*contract.Contract) error {
	db := dbFor(ctx, r.db)
	ids := make([]string, 0, len(contracts))
	rows := make([]model.Contract, 0, len(contracts))
	now := time.Now()
	for _, c := range contracts {
		bids, err := marshalJSON(c.Bids, "{}")
		if err != nil {
			return fmt.Errorf("encode contract %s bids: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
		rows = append(rows, model.Contract{
			ID:                c.ID,
			Partition:         partition,
			Kind:              string(c.Kind),
			IssuerTownID:      c.IssuerTownID,
			ResourceID:        c.ResourceID,
			Quantity:          int32(c.Quantity),
			CreatedTick:       int64(c.CreatedTick),
			ExpiryTick:        int64(c.ExpiryTick),
			State:             string(c.State),
			AcceptedBy:        c.AcceptedBy,
			Reclaimed:         c.Reclaimed,
			Price:             int32(c.Price),
			CurrentBid:        int32(c.CurrentBid),
			HighestBidder:     c.HighestBidder,
			DestinationTownID: c.DestinationTownID,
			Reward:            int32(c.Reward),
			Bids:              bids,
			UpdatedAt:         now,
		})
	}
	if err := deleteMissing(db, &model.Contract{}, partition, ids); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "accepted_by", "reclaimed", "current_bid", "highest_bidder", "bids", "updated_at",
		}),
	}).Create(&rows).Error
}

func (r ContractRepo) ListPayments(ctx context.Context, partition string) ([]contract.Payment, error) {
	rows := []model.Payment{}
	err := dbFor(ctx, r.db).
		Where(&model.Payment{Partition: partition}).
		Clauses(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "id"}}}}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]contract.Payment, 0, len(rows))
	for _, row := range rows {
		out = append(out, contract.Payment{
			ID:          row.ID,
			Partition:   row.Partition,
			TownID:      row.TownID,
			Recipient:   row.Recipient,
			ResourceID:  row.ResourceID,
			Amount:      int(row.Amount),
			ContractID:  row.ContractID,
			CreatedTick: uint64(row.CreatedTick),
			Claimed:     row.Claimed,
		})
	}
	return out, nil
}

func (r ContractRepo) SavePayments(ctx context.Context, partition string, payments []contract.Payment) error {
	db := dbFor(ctx, r.db)
	ids := make([]string, 0, len(payments))
	rows := make([]model.Payment, 0, len(payments))
	for _, p := range payments {
		ids = append(ids, p.ID)
		rows = append(rows, model.Payment{
			ID:          p.ID,
			Partition:   partition,
			TownID:      p.TownID,
			Recipient:   p.Recipient,
			ResourceID:  p.ResourceID,
			Amount:      int32(p.Amount),
			ContractID:  p.ContractID,
			CreatedTick: int64(p.CreatedTick),
			Claimed:     p.Claimed,
		})
	}
	if err := deleteMissing(db, &model.Payment{}, partition, ids); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"claimed"}),
	}).Create(&rows).Error
}

func deleteMissing(db *gorm.DB, table any, partition string, keep []string) error {
	q := db.Where("partition = ?", partition)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	return q.Delete(table).Error
}
