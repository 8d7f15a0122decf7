package gormrepo

import (
	"context"
	"encoding/json"

	"townsim/internal/adapter/repo/gorm/model"
	"townsim/internal/app/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepo struct {
	db *gorm.DB
}

func NewEventRepo(db *gorm.DB) EventRepo {
	return EventRepo{db: db}
}

func (r EventRepo) Append(ctx context.Context, events []ports.Event) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]model.TownEvent, 0, len(events))
	for _, e := range events {
		payload, err := marshalJSON(e.Payload, "{}")
		if err != nil {
			return err
		}
		rows = append(rows, model.TownEvent{
			Partition:  e.Partition,
			TownID:     e.TownID,
			Type:       e.Type,
			Tick:       int64(e.Tick),
			OccurredAt: e.OccurredAt,
			Payload:    payload,
		})
	}
	return dbFor(ctx, r.db).Create(&rows).Error
}

// ListByTown returns the newest limit events for a town, oldest first.
func (r EventRepo) ListByTown(ctx context.Context, townID string, limit int) ([]ports.Event, error) {
	rows := []model.TownEvent{}
	query := dbFor(ctx, r.db).
		Where(&model.TownEvent{TownID: townID}).
		Clauses(clause.OrderBy{
			Columns: []clause.OrderByColumn{
				{Column: clause.Column{Name: "occurred_at"}, Desc: true},
				{Column: clause.Column{Name: "id"}, Desc: true},
			},
		})
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]ports.Event, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		var payload map[string]any
		if row.Payload != "" {
			_ = json.Unmarshal([]byte(row.Payload), &payload)
		}
		out = append(out, ports.Event{
			Partition:  row.Partition,
			TownID:     row.TownID,
			Type:       row.Type,
			Tick:       uint64(row.Tick),
			OccurredAt: row.OccurredAt,
			Payload:    payload,
		})
	}
	return out, nil
}
