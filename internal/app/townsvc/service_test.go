package townsvc

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"townsim/internal/app/registry"
	"townsim/internal/domain/boundary"
	"townsim/internal/domain/town"
)

func newTestService(t *testing.T) (*Service, *bytes.Buffer) {
	t.Helper()
	cfg := DefaultConfig()
	reg := registry.New("overworld", boundary.NewService(5, cfg.DefaultStartingPopulation))
	var buf bytes.Buffer
	svc := NewService(reg, cfg, slog.New(slog.NewTextHandler(&buf, nil)))
	n := 0
	svc.NewID = func() string {
		n++
		return fmt.Sprintf("town-%d", n)
	}
	svc.Now = func() time.Time { return time.Unix(100, 0) }
	return svc, &buf
}

func TestService_CreateTownScenario(t *testing.T) {
	svc, _ := newTestService(t)
	tw, err := svc.CreateTown("Ab", town.Position{X: 0, Y: 64, Z: 0}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tw.Population != 0 || tw.BoundaryRadius() != 0 {
		t.Fatalf("expected zero population and radius, got %d/%d", tw.Population, tw.BoundaryRadius())
	}
	if svc.Registry.Boundary().DisplayRadius(tw) != 5 {
		t.Fatalf("expected display floor 5")
	}
	got, err := svc.Get(tw.ID)
	if err != nil || got != tw {
		t.Fatalf("expected stored town, got %v %v", got, err)
	}
	if !svc.Registry.IsDirty() {
		t.Fatalf("expected registry dirty after create")
	}
}

func TestService_CreateTownConflictScenario(t *testing.T) {
	svc, _ := newTestService(t)
	first, _ := svc.CreateTown("First", town.Position{X: 0, Y: 64, Z: 0}, nil)
	first.Population = 10

	_, err := svc.CreateTown("Second", town.Position{X: 4, Y: 64, Z: 0}, nil)
	var conflict *boundary.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if conflict.TownID != first.ID || conflict.Required() != 10+svc.Config.DefaultStartingPopulation {
		t.Fatalf("unexpected conflict: %+v", conflict)
	}
	if svc.Registry.Len() != 1 {
		t.Fatalf("conflicting town must not be stored")
	}
}

func TestService_CreateTownValidation(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.CreateTown("admin", town.Position{Y: 64}, nil); !town.HasCode(err, town.CodeInappropriateName) {
		t.Fatalf("expected inappropriate name, got %v", err)
	}
	if _, err := svc.CreateTown("Ok", town.Position{Y: 400}, nil); !town.HasCode(err, town.CodeInvalidPosition) {
		t.Fatalf("expected invalid position, got %v", err)
	}
	if _, err := svc.CreateTown("Ok", town.Position{Y: 64}, map[string]int{"wood": 0}); !town.HasCode(err, town.CodeInvalidResources) {
		t.Fatalf("expected invalid resources, got %v", err)
	}
	tw, err := svc.CreateTown("  Ok  ", town.Position{Y: 64}, map[string]int{"wood": 12})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tw.Name != "Ok" || tw.Resource("wood") != 12 {
		t.Fatalf("expected trimmed name and resources, got %q %v", tw.Name, tw.Resources)
	}
}

func TestService_CanSpawnTouristsIsFreshAndLogsOnChange(t *testing.T) {
	svc, buf := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	buf.Reset()

	if svc.CanSpawnTourists(tw) {
		t.Fatalf("population 0 must not spawn")
	}
	if svc.CanSpawnTourists(tw) {
		t.Fatalf("population 0 must not spawn")
	}
	if n := strings.Count(buf.String(), "eligibility changed"); n != 1 {
		t.Fatalf("expected one log line, got %d", n)
	}

	tw.Population = 5
	if !svc.CanSpawnTourists(tw) {
		t.Fatalf("expected fresh value after population change")
	}
	tw.TouristSpawningEnabled = false
	if svc.CanSpawnTourists(tw) {
		t.Fatalf("expected fresh value after disabling")
	}
	if n := strings.Count(buf.String(), "eligibility changed"); n != 3 {
		t.Fatalf("expected a log line per change, got %d", n)
	}
}

func TestService_CalculateMaxTouristsMonotonic(t *testing.T) {
	svc, _ := newTestService(t)
	tw := town.New("x", "overworld", "X", town.Position{}, 0, time.Unix(0, 0))
	prev := -1
	for pop := 0; pop <= 500; pop++ {
		tw.Population = pop
		got := svc.CalculateMaxTourists(tw)
		if got < prev {
			t.Fatalf("capacity decreased at population %d: %d < %d", pop, got, prev)
		}
		prev = got
	}
	if prev != svc.Config.MaxTouristsPerTown {
		t.Fatalf("expected cap %d, got %d", svc.Config.MaxTouristsPerTown, prev)
	}
	tw.Population = 45
	if got := svc.CalculateMaxTourists(tw); got != 4 {
		t.Fatalf("expected 45/10 = 4, got %d", got)
	}
}

func TestService_AddTouristScenarios(t *testing.T) {
	svc, _ := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	tw.Population = 20
	tw.TouristSpawningEnabled = false

	err := svc.AddTourist(tw)
	if !errors.Is(err, town.ErrState) || !town.HasCode(err, town.CodeSpawningDisabled) {
		t.Fatalf("expected SPAWNING_DISABLED, got %v", err)
	}
	if tw.TouristCount != 0 {
		t.Fatalf("tourist count changed on failure")
	}

	tw.TouristSpawningEnabled = true
	for i := 0; i < 2; i++ {
		if err := svc.AddTourist(tw); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}
	if err := svc.AddTourist(tw); !town.HasCode(err, town.CodeTouristLimitReached) {
		t.Fatalf("expected TOURIST_LIMIT_REACHED, got %v", err)
	}
	if tw.TouristCount != 2 {
		t.Fatalf("expected 2 tourists, got %d", tw.TouristCount)
	}
}

func TestService_RemoveTouristWithNone(t *testing.T) {
	svc, _ := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	if err := svc.RemoveTourist(tw); !town.HasCode(err, town.CodeNoTourists) {
		t.Fatalf("expected NO_TOURISTS, got %v", err)
	}
}

func TestService_AddResourcesRejectsNonPositive(t *testing.T) {
	svc, _ := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	for _, n := range []int{0, -3} {
		if err := svc.AddResources(tw, "wood", n); !town.HasCode(err, town.CodeInvalidAmount) {
			t.Fatalf("expected INVALID_AMOUNT for %d, got %v", n, err)
		}
	}
	if err := svc.AddResources(tw, "wood", 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.RemoveResources(tw, "wood", 4); !town.HasCode(err, town.CodeInsufficientResources) {
		t.Fatalf("expected insufficient, got %v", err)
	}
}

func TestService_TradeResourceIsAllOrNothing(t *testing.T) {
	svc, _ := newTestService(t)
	a, _ := svc.CreateTown("Aa", town.Position{Y: 64}, map[string]int{"wood": 5})
	b, _ := svc.CreateTown("Bb", town.Position{X: 100, Y: 64}, nil)
	b.Resources["wood"] = town.MaxResourceCount
	if err := svc.TradeResource(a, b, "wood", 5); !town.HasCode(err, town.CodeResourceOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if a.Resource("wood") != 5 {
		t.Fatalf("source changed on failed trade")
	}
	b.Resources["wood"] = 0
	if err := svc.TradeResource(a, b, "wood", 5); err != nil {
		t.Fatalf("trade: %v", err)
	}
	if a.Resource("wood") != 0 || b.Resource("wood") != 5 {
		t.Fatalf("unexpected balances %d/%d", a.Resource("wood"), b.Resource("wood"))
	}
}

func TestService_ProcessVisitorGrowsAtThreshold(t *testing.T) {
	svc, _ := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	var out VisitOutcome
	for i := 0; i < 50; i++ {
		var err error
		out, err = svc.ProcessVisitor(tw, fmt.Sprintf("v-%d", i), "origin")
		if err != nil {
			t.Fatalf("visit: %v", err)
		}
		if i < 49 && out.Growth != 0 {
			t.Fatalf("grew too early at visitor %d", i)
		}
	}
	if out.Growth != 1 || tw.Population != 1 || tw.PendingVisitors != 0 {
		t.Fatalf("expected growth of 1, got %+v pending=%d", out, tw.PendingVisitors)
	}
	if tw.TotalVisitors != 50 || tw.VisitorsByOrigin["origin"] != 50 {
		t.Fatalf("unexpected visitor stats %d %v", tw.TotalVisitors, tw.VisitorsByOrigin)
	}
}

func TestService_ProcessVisitorGrowthBlockedByBoundary(t *testing.T) {
	svc, _ := newTestService(t)
	a, _ := svc.CreateTown("Aa", town.Position{X: 0, Y: 64}, nil)
	b, _ := svc.CreateTown("Bb", town.Position{X: 10, Y: 64}, nil)
	b.Population = 10
	a.PendingVisitors = 49

	out, err := svc.ProcessVisitor(a, "v", "")
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if out.Blocked == nil || out.Blocked.TownID != b.ID {
		t.Fatalf("expected growth blocked by b, got %+v", out)
	}
	if a.Population != 0 || a.PendingVisitors != 50 {
		t.Fatalf("blocked growth must not change population or consume visitors")
	}
}

func TestService_UpdateTownSettingsPartial(t *testing.T) {
	svc, _ := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	svc.Registry.ClearDirty()

	radius := 40
	if err := svc.UpdateTownSettings(tw, town.Settings{SearchRadius: &radius}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if tw.Name != "Ab" || tw.SearchRadius != 40 || !svc.Registry.IsDirty() {
		t.Fatalf("unexpected state: %+v", tw)
	}

	bad := "admin hall"
	if err := svc.UpdateTownSettings(tw, town.Settings{Name: &bad, SearchRadius: &radius}); err == nil {
		t.Fatalf("expected invalid name to reject the whole update")
	}
	if tw.Name != "Ab" {
		t.Fatalf("name changed despite validation failure")
	}

	svc.Registry.ClearDirty()
	if err := svc.UpdateTownSettings(tw, town.Settings{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if svc.Registry.IsDirty() {
		t.Fatalf("no-op update must not dirty the registry")
	}
}

func TestService_Platforms(t *testing.T) {
	svc, _ := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	p, err := svc.AddPlatform(tw, "North Gate", town.Position{Y: 64}, town.Position{X: 5, Y: 64})
	if err != nil {
		t.Fatalf("add platform: %v", err)
	}
	if err := svc.SetPlatformEnabled(tw, p.ID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if len(tw.EnabledPlatforms()) != 0 {
		t.Fatalf("expected no enabled platforms")
	}
	if _, err := svc.AddPlatform(tw, "x", town.Position{}, town.Position{}); err == nil {
		t.Fatalf("expected short name to fail")
	}
}

func TestService_RemoveTown(t *testing.T) {
	svc, _ := newTestService(t)
	tw, _ := svc.CreateTown("Ab", town.Position{Y: 64}, nil)
	if _, err := svc.RemoveTown(tw.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := svc.Get(tw.ID); !errors.Is(err, town.ErrNotFound) {
		t.Fatalf("expected removed town to be gone, got %v", err)
	}
}

func TestService_RecordTouristVisitCreditsReward(t *testing.T) {
	svc, _ := newTestService(t)
	origin, _ := svc.CreateTown("Origin", town.Position{X: 0, Y: 64, Z: 0}, nil)
	dest, _ := svc.CreateTown("Dest", town.Position{X: 1500, Y: 64, Z: 0}, nil)

	visit, out, err := svc.RecordTouristVisit(dest, origin, 5, "emerald")
	if err != nil {
		t.Fatalf("visit: %v", err)
	}
	if visit.Reward != 25 || dest.Resource("emerald") != 25 {
		t.Fatalf("expected reward 25 credited, got %d / %d", visit.Reward, dest.Resource("emerald"))
	}
	if out.TotalVisitors != 5 || dest.VisitorsByOrigin[origin.ID] != 5 {
		t.Fatalf("expected 5 visitors from origin, got %+v", out)
	}
	if _, _, err := svc.RecordTouristVisit(dest, origin, 0, "emerald"); err == nil {
		t.Fatalf("expected zero tourists to be rejected")
	}
}

func TestService_ExpandPopulationChecksBoundary(t *testing.T) {
	svc, _ := newTestService(t)
	a, _ := svc.CreateTown("Alpha", town.Position{X: 0, Y: 64}, nil)
	b, _ := svc.CreateTown("Beta", town.Position{X: 30, Y: 64}, nil)
	b.Population = 10

	if err := svc.ExpandPopulation(a, 0); !town.HasCode(err, town.CodeInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if err := svc.ExpandPopulation(a, 15); err != nil {
		t.Fatalf("expand: %v", err)
	}
	if a.Population != 15 {
		t.Fatalf("expected 15, got %d", a.Population)
	}
	if err := svc.ExpandPopulation(a, 10); !town.HasCode(err, town.CodeBoundaryConflict) {
		t.Fatalf("expected boundary conflict, got %v", err)
	}
	if a.Population != 15 {
		t.Fatalf("population must not change on conflict, got %d", a.Population)
	}
}
