package gormrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"townsim/internal/adapter/repo/gorm/model"
	"townsim/internal/domain/town"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TownRepo struct {
	db *gorm.DB
}

func NewTownRepo(db *gorm.DB) TownRepo {
	return TownRepo{db: db}
}

func (r TownRepo) ListByPartition(ctx context.Context, partition string) ([]*town.Town, error) {
	rows := []model.Town{}
	err := dbFor(ctx, r.db).
		Where(&model.Town{Partition: partition}).
		Clauses(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "id"}}}}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*town.Town, 0, len(rows))
	for _, row := range rows {
		t, err := toDomainTown(row)
		if err != nil {
			return nil, fmt.Errorf("decode town %s: %w", row.ID, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r TownRepo) SaveAll(ctx context.Context, partition string, towns []*town.Town, removedIDs []string) error {
	db := dbFor(ctx, r.db)
	if len(removedIDs) > 0 {
		err := db.Where("partition = ? AND id IN ?", partition, removedIDs).Delete(&model.Town{}).Error
		if err != nil {
			return err
		}
	}
	if len(towns) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]model.Town, 0, len(towns))
	for _, t := range towns {
		row, err := toTownModel(partition, t, now)
		if err != nil {
			return fmt.Errorf("encode town %s: %w", t.ID, err)
		}
		rows = append(rows, row)
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: append(clause.AssignmentColumns([]string{
			"name", "x", "y", "z", "population", "tourist_spawning_enabled", "tourist_count",
			"search_radius", "total_visitors", "pending_visitors", "resources",
			"visitors_by_origin", "personal_storage", "platforms", "updated_at",
		}), clause.Assignment{
			Column: clause.Column{Name: "version"},
			Value:  gorm.Expr("towns.version + 1"),
		}),
	}).Create(&rows).Error
}

func toTownModel(partition string, t *town.Town, now time.Time) (model.Town, error) {
	resources, err := marshalJSON(t.Resources, "{}")
	if err != nil {
		return model.Town{}, err
	}
	visitors, err := marshalJSON(t.VisitorsByOrigin, "{}")
	if err != nil {
		return model.Town{}, err
	}
	storage, err := marshalJSON(t.PersonalStorage, "{}")
	if err != nil {
		return model.Town{}, err
	}
	platforms, err := marshalJSON(t.Platforms, "[]")
	if err != nil {
		return model.Town{}, err
	}
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	version := t.Version
	if version <= 0 {
		version = 1
	}
	return model.Town{
		ID:                     t.ID,
		Partition:              partition,
		Name:                   t.Name,
		X:                      int32(t.Position.X),
		Y:                      int32(t.Position.Y),
		Z:                      int32(t.Position.Z),
		Population:             int32(t.Population),
		TouristSpawningEnabled: t.TouristSpawningEnabled,
		TouristCount:           int32(t.TouristCount),
		SearchRadius:           int32(t.SearchRadius),
		TotalVisitors:          t.TotalVisitors,
		PendingVisitors:        int32(t.PendingVisitors),
		Resources:              resources,
		VisitorsByOrigin:       visitors,
		PersonalStorage:        storage,
		Platforms:              platforms,
		CreatedAt:              created,
		UpdatedAt:              now,
		Version:                version,
	}, nil
}

func toDomainTown(row model.Town) (*town.Town, error) {
	t := &town.Town{
		ID:                     row.ID,
		Partition:              row.Partition,
		Position:               town.Position{X: int(row.X), Y: int(row.Y), Z: int(row.Z)},
		Name:                   row.Name,
		Population:             int(row.Population),
		Resources:              map[string]int{},
		TouristSpawningEnabled: row.TouristSpawningEnabled,
		TouristCount:           int(row.TouristCount),
		SearchRadius:           int(row.SearchRadius),
		TotalVisitors:          row.TotalVisitors,
		PendingVisitors:        int(row.PendingVisitors),
		VisitorsByOrigin:       map[string]int{},
		PersonalStorage:        map[string]map[string]int{},
		CreatedAt:              row.CreatedAt,
		Version:                row.Version,
	}
	if err := unmarshalJSON(row.Resources, &t.Resources); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(row.VisitorsByOrigin, &t.VisitorsByOrigin); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(row.PersonalStorage, &t.PersonalStorage); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(row.Platforms, &t.Platforms); err != nil {
		return nil, err
	}
	return t, nil
}

func marshalJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func unmarshalJSON(raw string, dst any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dst)
}
