package boundary

import (
	"fmt"

	"townsim/internal/domain/town"
)

const DefaultMinDisplayRadius = 5

// ConflictError describes a territory overlap between a candidate and an
// existing town.
type ConflictError struct {
	TownID          string
	TownName        string
	CandidateRadius int
	ExistingRadius  int
	Distance        float64
}

func (e *ConflictError) Required() int {
	return e.CandidateRadius + e.ExistingRadius
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", town.CodeBoundaryConflict, e.message())
}

func (e *ConflictError) message() string {
	return fmt.Sprintf("too close to %s (distance %.1f, required %d = %d + %d)",
		e.TownName, e.Distance, e.Required(), e.CandidateRadius, e.ExistingRadius)
}

func (e *ConflictError) Unwrap() error {
	return town.Conflict(town.CodeBoundaryConflict, "%s", e.message())
}

type Service struct {
	MinDisplayRadius          int
	DefaultStartingPopulation int
}

func NewService(minDisplayRadius, defaultStartingPopulation int) Service {
	if minDisplayRadius < 0 {
		minDisplayRadius = 0
	}
	if defaultStartingPopulation < 0 {
		defaultStartingPopulation = 0
	}
	return Service{MinDisplayRadius: minDisplayRadius, DefaultStartingPopulation: defaultStartingPopulation}
}

// Radius is the placement radius. It is never floored.
func (s Service) Radius(t *town.Town) int {
	return t.BoundaryRadius()
}

// DisplayRadius is the radius used for rendering and search.
func (s Service) DisplayRadius(t *town.Town) int {
	r := t.BoundaryRadius()
	if r < s.MinDisplayRadius {
		return s.MinDisplayRadius
	}
	return r
}

func (s Service) CheckPlacement(candidate town.Position, existing []*town.Town) error {
	return checkAgainst(candidate, s.DefaultStartingPopulation, "", existing)
}

// CheckExpansion validates growing t to proposedPopulation against every other
// town's current radius.
func (s Service) CheckExpansion(t *town.Town, proposedPopulation int, existing []*town.Town) error {
	if proposedPopulation <= t.Population {
		return nil
	}
	return checkAgainst(t.Position, proposedPopulation, t.ID, existing)
}

func checkAgainst(pos town.Position, radius int, skipID string, existing []*town.Town) error {
	for _, other := range existing {
		if other == nil || (skipID != "" && other.ID == skipID) {
			continue
		}
		otherRadius := other.BoundaryRadius()
		required := float64(radius + otherRadius)
		distance := pos.DistanceTo(other.Position)
		if distance < required {
			return &ConflictError{
				TownID:          other.ID,
				TownName:        other.Name,
				CandidateRadius: radius,
				ExistingRadius:  otherRadius,
				Distance:        distance,
			}
		}
	}
	return nil
}

type Violation struct {
	A        string
	B        string
	Distance float64
	Required int
}

// Violations lists every pair of towns whose territories overlap.
func Violations(towns []*town.Town) []Violation {
	var out []Violation
	for i := 0; i < len(towns); i++ {
		for j := i + 1; j < len(towns); j++ {
			a, b := towns[i], towns[j]
			required := a.BoundaryRadius() + b.BoundaryRadius()
			d := a.Position.DistanceTo(b.Position)
			if d < float64(required) {
				out = append(out, Violation{A: a.ID, B: b.ID, Distance: d, Required: required})
			}
		}
	}
	return out
}

// Contains reports whether p falls inside t's displayed territory.
func (s Service) Contains(t *town.Town, p town.Position) bool {
	r := float64(s.DisplayRadius(t))
	return t.Position.DistanceSquared(p) <= r*r
}
