package tourist

import (
	"testing"

	"townsim/internal/domain/town"
)

func testConfig() Config {
	return Config{ExpiryMinutes: 1, EnableExpiry: true, NotifyOnDeparture: true, TicksPerMinute: 100}
}

func tickN(a *Agent, n int) (Departure, bool) {
	for i := 0; i < n; i++ {
		if dep, ok := a.Tick(); ok {
			return dep, true
		}
	}
	return Departure{}, false
}

func TestAgent_SpawnPositionCapturedOnce(t *testing.T) {
	a := NewAgent("a-1", "origin", "", 0, testConfig())
	a.SetPosition(town.Vec{X: 1, Y: 64, Z: 1})
	a.SetPosition(town.Vec{X: 9, Y: 64, Z: 9})
	if a.SpawnPosition != (town.Vec{X: 1, Y: 64, Z: 1}) {
		t.Fatalf("spawn position overwritten: %+v", a.SpawnPosition)
	}
	if a.DestinationTownID != AnyTown {
		t.Fatalf("expected any-town sentinel, got %q", a.DestinationTownID)
	}
	if a.Phase != PhaseActive {
		t.Fatalf("expected active after first position, got %s", a.Phase)
	}
}

func TestAgent_MovedLatchIsOneWay(t *testing.T) {
	a := NewAgent("a-1", "origin", "", 0, testConfig())
	a.SetPosition(town.Vec{})
	a.SetPosition(town.Vec{X: 2})
	a.Tick()
	if a.Moved.Fired() {
		t.Fatalf("distance of exactly 2 must not latch moved")
	}
	a.SetPosition(town.Vec{X: 2.1})
	a.Tick()
	if !a.Moved.Fired() {
		t.Fatalf("expected moved latch")
	}
	a.SetPosition(town.Vec{})
	a.Tick()
	if !a.Moved.Fired() {
		t.Fatalf("moved latch must not reset when returning to spawn")
	}
}

func TestAgent_ExpiryFrozenWhileMoving(t *testing.T) {
	a := NewAgent("a-1", "origin", "", 0, testConfig())
	a.SetPosition(town.Vec{})
	start := a.ExpiryTicks
	x := 0.0
	for i := 0; i < 10*PositionUpdateInterval; i++ {
		x += 0.5
		a.SetPosition(town.Vec{X: x})
		if _, ok := a.Tick(); ok {
			t.Fatalf("moving agent must not expire")
		}
		if a.ExpiryTicks > start {
			t.Fatalf("expiry increased without a ride")
		}
		if a.ExpiryTicks != start {
			t.Fatalf("expiry decreased while moving: %d -> %d", start, a.ExpiryTicks)
		}
	}
}

func TestAgent_ExpiresWhenStationaryAndNotifiesOnce(t *testing.T) {
	a := NewAgent("a-1", "origin", "dest", 0, testConfig())
	a.SetPosition(town.Vec{})
	dep, ok := tickN(a, PositionUpdateInterval+a.ExpiryTicks)
	if !ok {
		t.Fatalf("expected expiry, ticks left %d", a.ExpiryTicks)
	}
	if dep.Reason != ReasonExpired || dep.OriginTownID != "origin" {
		t.Fatalf("unexpected departure: %+v", dep)
	}
	if dep.ShowMessage {
		t.Fatalf("agent that never moved must not show a departure message on expiry")
	}
	if a.Phase != PhaseExpired {
		t.Fatalf("expected expired phase, got %s", a.Phase)
	}
	if _, again := a.Die("fall"); again {
		t.Fatalf("origin must be notified exactly once")
	}
	if _, again := a.Tick(); again {
		t.Fatalf("expired agent must not tick")
	}
}

func TestAgent_ExpiryDisabledNeverExpires(t *testing.T) {
	cfg := testConfig()
	cfg.EnableExpiry = false
	a := NewAgent("a-1", "origin", "", 0, cfg)
	a.SetPosition(town.Vec{})
	if _, ok := tickN(a, 10*a.ExpiryTicks); ok {
		t.Fatalf("expiry disabled but agent expired")
	}
}

func TestAgent_RideExtensionOnlyOnce(t *testing.T) {
	a := NewAgent("a-1", "origin", "", 0, testConfig())
	a.SetPosition(town.Vec{})
	tickN(a, PositionUpdateInterval+10)
	if a.ExpiryTicks >= testConfig().ExpiryTicks() {
		t.Fatalf("expected countdown to have started")
	}
	if !a.BoardVehicle() {
		t.Fatalf("first boarding must extend")
	}
	if a.ExpiryTicks != testConfig().ExpiryTicks() {
		t.Fatalf("expected full reset, got %d", a.ExpiryTicks)
	}
	tickN(a, 5)
	before := a.ExpiryTicks
	for i := 0; i < 3; i++ {
		if a.BoardVehicle() {
			t.Fatalf("second boarding must not extend")
		}
	}
	if a.ExpiryTicks != before {
		t.Fatalf("expiry changed on repeated boarding")
	}
}

func TestAgent_DeathAlwaysShowsMessage(t *testing.T) {
	a := NewAgent("a-1", "origin", "", 0, testConfig())
	a.SetPosition(town.Vec{})
	dep, ok := a.Die("lava")
	if !ok || !dep.ShowMessage || dep.Reason != ReasonDied || dep.Cause != "lava" {
		t.Fatalf("unexpected death departure: %+v ok=%v", dep, ok)
	}
	if _, again := a.Die("lava"); again {
		t.Fatalf("second death must not notify")
	}
}

func TestAgent_ExpiryAfterMovingShowsMessage(t *testing.T) {
	a := NewAgent("a-1", "origin", "", 0, testConfig())
	a.SetPosition(town.Vec{})
	a.SetPosition(town.Vec{X: 10})
	dep, ok := tickN(a, 2*PositionUpdateInterval+a.ExpiryTicks)
	if !ok || !dep.ShowMessage {
		t.Fatalf("expected visible departure after moving, got %+v ok=%v", dep, ok)
	}
}

func TestAgent_NotifyDisabledHidesMessages(t *testing.T) {
	cfg := testConfig()
	cfg.NotifyOnDeparture = false
	a := NewAgent("a-1", "origin", "", 0, cfg)
	a.SetPosition(town.Vec{})
	dep, ok := a.Die("void")
	if !ok || dep.ShowMessage {
		t.Fatalf("expected silent departure, got %+v", dep)
	}
}

func TestAgent_ArriveCountsOnce(t *testing.T) {
	a := NewAgent("a-1", "origin", "", 0, testConfig())
	a.SetPosition(town.Vec{})
	if a.Arrive("origin") {
		t.Fatalf("arriving at origin is not a visit")
	}
	if !a.Arrive("dest") {
		t.Fatalf("expected first arrival to count")
	}
	if a.Arrive("dest") || a.Arrive("other") {
		t.Fatalf("only the first arrival counts")
	}
}
