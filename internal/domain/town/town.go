package town

import (
	"sort"
	"strings"
	"time"
)

func New(id, partition, name string, pos Position, population int, now time.Time) *Town {
	if population < 0 {
		population = 0
	}
	return &Town{
		ID:                     id,
		Partition:              partition,
		Position:               pos,
		Name:                   name,
		Population:             population,
		Resources:              map[string]int{},
		TouristSpawningEnabled: true,
		SearchRadius:           DefaultSearchRadius,
		VisitorsByOrigin:       map[string]int{},
		PersonalStorage:        map[string]map[string]int{},
		CreatedAt:              now,
		Version:                1,
	}
}

// BoundaryRadius is the authoritative territory radius: population, 1:1.
func (t *Town) BoundaryRadius() int {
	return t.Population
}

func (t *Town) Resource(kind string) int {
	if t.Resources == nil {
		return 0
	}
	return t.Resources[kind]
}

func (t *Town) AddResource(kind string, amount int) error {
	if kind == "" {
		return Validation(CodeInvalidResources, "resource kind is required")
	}
	if amount <= 0 {
		return Validation(CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	current := t.Resource(kind)
	if current > MaxResourceCount-amount {
		return Validation(CodeResourceOverflow, "adding %d %s would overflow the stored count %d", amount, kind, current)
	}
	if t.Resources == nil {
		t.Resources = map[string]int{}
	}
	t.Resources[kind] = current + amount
	return nil
}

func (t *Town) RemoveResource(kind string, amount int) error {
	if kind == "" {
		return Validation(CodeInvalidResources, "resource kind is required")
	}
	if amount <= 0 {
		return Validation(CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	current := t.Resource(kind)
	if current < amount {
		return Validation(CodeInsufficientResources, "town has %d %s, cannot remove %d", current, kind, amount)
	}
	if current == amount {
		delete(t.Resources, kind)
		return nil
	}
	t.Resources[kind] = current - amount
	return nil
}

// ResourceKinds returns the held resource kinds in stable order.
func (t *Town) ResourceKinds() []string {
	out := make([]string, 0, len(t.Resources))
	for k := range t.Resources {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (t *Town) Stored(player, kind string) int {
	if t.PersonalStorage == nil {
		return 0
	}
	return t.PersonalStorage[player][kind]
}

func (t *Town) Deposit(player, kind string, amount int) error {
	if strings.TrimSpace(player) == "" {
		return Validation(CodeInvalidResources, "player is required")
	}
	if kind == "" {
		return Validation(CodeInvalidResources, "resource kind is required")
	}
	if amount <= 0 {
		return Validation(CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	current := t.Stored(player, kind)
	if current > MaxResourceCount-amount {
		return Validation(CodeResourceOverflow, "storage for %s would overflow", player)
	}
	if t.PersonalStorage == nil {
		t.PersonalStorage = map[string]map[string]int{}
	}
	ledger := t.PersonalStorage[player]
	if ledger == nil {
		ledger = map[string]int{}
		t.PersonalStorage[player] = ledger
	}
	ledger[kind] = current + amount
	return nil
}

func (t *Town) Withdraw(player, kind string, amount int) error {
	if amount <= 0 {
		return Validation(CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	current := t.Stored(player, kind)
	if current < amount {
		return Validation(CodeInsufficientResources, "%s has %d %s stored, cannot withdraw %d", player, current, kind, amount)
	}
	ledger := t.PersonalStorage[player]
	if current == amount {
		delete(ledger, kind)
		if len(ledger) == 0 {
			delete(t.PersonalStorage, player)
		}
		return nil
	}
	ledger[kind] = current - amount
	return nil
}

func (t *Town) Platform(id string) (Platform, int, bool) {
	for i, p := range t.Platforms {
		if p.ID == id {
			return p, i, true
		}
	}
	return Platform{}, -1, false
}

func (t *Town) AddPlatform(p Platform) {
	t.Platforms = append(t.Platforms, p)
}

func (t *Town) RemovePlatform(id string) error {
	_, idx, ok := t.Platform(id)
	if !ok {
		return NotFound(CodePlatformNotFound, "platform %s not found in %s", id, t.Name)
	}
	t.Platforms = append(t.Platforms[:idx], t.Platforms[idx+1:]...)
	return nil
}

func (t *Town) SetPlatformEnabled(id string, enabled bool) error {
	_, idx, ok := t.Platform(id)
	if !ok {
		return NotFound(CodePlatformNotFound, "platform %s not found in %s", id, t.Name)
	}
	t.Platforms[idx].Enabled = enabled
	return nil
}

// EnabledPlatforms is the routing view: enabled platforms in insertion order.
func (t *Town) EnabledPlatforms() []Platform {
	out := make([]Platform, 0, len(t.Platforms))
	for _, p := range t.Platforms {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

func (t *Town) RecordVisitor(originTownID string) {
	t.TotalVisitors++
	t.PendingVisitors++
	if originTownID == "" {
		return
	}
	if t.VisitorsByOrigin == nil {
		t.VisitorsByOrigin = map[string]int{}
	}
	t.VisitorsByOrigin[originTownID]++
}

// Clone returns a deep copy, used for snapshots handed to other layers.
func (t *Town) Clone() *Town {
	c := *t
	c.Resources = copyCounts(t.Resources)
	c.VisitorsByOrigin = copyCounts(t.VisitorsByOrigin)
	c.Platforms = append([]Platform(nil), t.Platforms...)
	c.PersonalStorage = make(map[string]map[string]int, len(t.PersonalStorage))
	for player, ledger := range t.PersonalStorage {
		c.PersonalStorage[player] = copyCounts(ledger)
	}
	return &c
}

func copyCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
