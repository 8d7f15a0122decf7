package town

import (
	"math"
	"time"
)

const (
	DefaultSearchRadius = 30

	// MaxResourceCount is the largest count a single ledger entry may hold.
	MaxResourceCount = math.MaxInt32
)

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p Position) DistanceSquared(o Position) float64 {
	dx := float64(p.X - o.X)
	dy := float64(p.Y - o.Y)
	dz := float64(p.Z - o.Z)
	return dx*dx + dy*dy + dz*dz
}

func (p Position) DistanceTo(o Position) float64 {
	return math.Sqrt(p.DistanceSquared(o))
}

func (p Position) Vec() Vec {
	return Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

// Vec is a continuous world position, used for moving agents.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec) DistanceSquared(o Vec) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	dz := v.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vec) Block() Position {
	return Position{X: int(math.Floor(v.X)), Y: int(math.Floor(v.Y)), Z: int(math.Floor(v.Z))}
}

type Platform struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Start   Position `json:"start"`
	End     Position `json:"end"`
	Enabled bool     `json:"enabled"`
}

// Settings is a partial update; nil fields are left untouched.
type Settings struct {
	Name                   *string `json:"name,omitempty"`
	SearchRadius           *int    `json:"search_radius,omitempty"`
	TouristSpawningEnabled *bool   `json:"tourist_spawning_enabled,omitempty"`
}

type Town struct {
	ID                     string                    `json:"id"`
	Partition              string                    `json:"partition"`
	Position               Position                  `json:"position"`
	Name                   string                    `json:"name"`
	Population             int                       `json:"population"`
	Resources              map[string]int            `json:"resources"`
	TouristSpawningEnabled bool                      `json:"tourist_spawning_enabled"`
	TouristCount           int                       `json:"tourist_count"`
	SearchRadius           int                       `json:"search_radius"`
	Platforms              []Platform                `json:"platforms"`
	TotalVisitors          int64                     `json:"total_visitors"`
	PendingVisitors        int                       `json:"pending_visitors"`
	VisitorsByOrigin       map[string]int            `json:"visitors_by_origin,omitempty"`
	PersonalStorage        map[string]map[string]int `json:"personal_storage,omitempty"`
	CreatedAt              time.Time                 `json:"created_at"`
	Version                int64                     `json:"version"`
}
