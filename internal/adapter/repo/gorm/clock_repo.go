package gormrepo

import (
	"context"
	"errors"
	"time"

	"townsim/internal/adapter/repo/gorm/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ClockRepo struct {
	db *gorm.DB
}

func NewClockRepo(db *gorm.DB) ClockRepo {
	return ClockRepo{db: db}
}

func (r ClockRepo) LoadTick(ctx context.Context, partition string) (uint64, error) {
	var row model.PartitionClock
	err := dbFor(ctx, r.db).
		Where(&model.PartitionClock{Partition: partition}).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(row.Tick), nil
}

func (r ClockRepo) SaveTick(ctx context.Context, partition string, tick uint64) error {
	row := model.PartitionClock{Partition: partition, Tick: int64(tick), UpdatedAt: time.Now().UTC()}
	return dbFor(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "partition"}},
			DoUpdates: clause.AssignmentColumns([]string{"tick", "updated_at"}),
		}).
		Create(&row).Error
}
