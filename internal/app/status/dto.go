package status

import (
	"time"

	"townsim/internal/domain/town"
)

type TownView struct {
	ID                     string          `json:"id"`
	Partition              string          `json:"partition"`
	Name                   string          `json:"name"`
	Position               town.Position   `json:"position"`
	Population             int             `json:"population"`
	BoundaryRadius         int             `json:"boundary_radius"`
	DisplayRadius          int             `json:"display_radius"`
	SearchRadius           int             `json:"search_radius"`
	Resources              map[string]int  `json:"resources"`
	TouristSpawningEnabled bool            `json:"tourist_spawning_enabled"`
	TouristCount           int             `json:"tourist_count"`
	MaxTourists            int             `json:"max_tourists"`
	TotalVisitors          int64           `json:"total_visitors"`
	VisitorsByOrigin       map[string]int  `json:"visitors_by_origin,omitempty"`
	Platforms              []town.Platform `json:"platforms"`
	CreatedAt              time.Time       `json:"created_at"`
	Version                int64           `json:"version"`
	Storage                map[string]int  `json:"storage,omitempty"`
}

type BoundaryView struct {
	TownID        string        `json:"town_id"`
	Name          string        `json:"name"`
	Position      town.Position `json:"position"`
	Radius        int           `json:"radius"`
	DisplayRadius int           `json:"display_radius"`
}

type TownRequest struct {
	Partition string
	TownID    string
	// Player, when set, includes that player's personal storage at the town.
	Player string
}

type BoundaryRequest struct {
	Partition string
	Center    town.Position
	Radius    int
}
