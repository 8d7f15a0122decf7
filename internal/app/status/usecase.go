package status

import (
	"strings"

	"townsim/internal/app/registry"
	"townsim/internal/app/townsvc"
	"townsim/internal/domain/town"
)

// UseCase builds read-only projections of loaded partitions. Callers must
// hold the simulation lock; views never alias live town maps.
type UseCase struct {
	Registries *registry.Registries
	TownConfig townsvc.Config
}

func (u UseCase) Town(req TownRequest) (TownView, error) {
	if strings.TrimSpace(req.TownID) == "" {
		return TownView{}, town.NotFound(town.CodeTownNotFound, "town id is required")
	}
	reg, err := u.Registries.Get(req.Partition)
	if err != nil {
		return TownView{}, err
	}
	t, err := reg.Get(req.TownID)
	if err != nil {
		return TownView{}, err
	}
	v := u.view(reg, t)
	if req.Player != "" {
		if ledger := t.PersonalStorage[req.Player]; len(ledger) > 0 {
			v.Storage = copyCounts(ledger)
		}
	}
	return v, nil
}

func (u UseCase) Towns(partition string) ([]TownView, error) {
	reg, err := u.Registries.Get(partition)
	if err != nil {
		return nil, err
	}
	all := reg.All()
	out := make([]TownView, 0, len(all))
	for _, t := range all {
		out = append(out, u.view(reg, t))
	}
	return out, nil
}

// BoundarySync lists the territories a client near Center needs to draw.
// A town is included when its displayed border reaches into Radius.
func (u UseCase) BoundarySync(req BoundaryRequest) ([]BoundaryView, error) {
	reg, err := u.Registries.Get(req.Partition)
	if err != nil {
		return nil, err
	}
	b := reg.Boundary()
	out := make([]BoundaryView, 0)
	for _, t := range reg.All() {
		display := b.DisplayRadius(t)
		reach := float64(req.Radius + display)
		if t.Position.DistanceSquared(req.Center) > reach*reach {
			continue
		}
		out = append(out, BoundaryView{
			TownID:        t.ID,
			Name:          t.Name,
			Position:      t.Position,
			Radius:        b.Radius(t),
			DisplayRadius: display,
		})
	}
	return out, nil
}

func (u UseCase) Platforms(partition, townID string, enabledOnly bool) ([]town.Platform, error) {
	reg, err := u.Registries.Get(partition)
	if err != nil {
		return nil, err
	}
	t, err := reg.Get(townID)
	if err != nil {
		return nil, err
	}
	if enabledOnly {
		return t.EnabledPlatforms(), nil
	}
	return append([]town.Platform(nil), t.Platforms...), nil
}

func (u UseCase) view(reg *registry.Registry, t *town.Town) TownView {
	b := reg.Boundary()
	capacity := &townsvc.Service{Config: u.TownConfig}
	return TownView{
		ID:                     t.ID,
		Partition:              t.Partition,
		Name:                   t.Name,
		Position:               t.Position,
		Population:             t.Population,
		BoundaryRadius:         b.Radius(t),
		DisplayRadius:          b.DisplayRadius(t),
		SearchRadius:           t.SearchRadius,
		Resources:              copyCounts(t.Resources),
		TouristSpawningEnabled: t.TouristSpawningEnabled,
		TouristCount:           t.TouristCount,
		MaxTourists:            capacity.CalculateMaxTourists(t),
		TotalVisitors:          t.TotalVisitors,
		VisitorsByOrigin:       copyCounts(t.VisitorsByOrigin),
		Platforms:              append([]town.Platform(nil), t.Platforms...),
		CreatedAt:              t.CreatedAt,
		Version:                t.Version,
	}
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
