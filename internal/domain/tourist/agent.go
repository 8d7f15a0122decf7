package tourist

import (
	"townsim/internal/domain/town"
)

const (
	// AnyTown is the destination id of a tourist willing to visit any town.
	AnyTown = "*"

	PositionUpdateInterval = 20

	// MovedThresholdSq latches Moved once the squared distance from spawn
	// exceeds it (2 blocks).
	MovedThresholdSq = 4.0
	// StationaryThresholdSq marks an agent stationary when its squared
	// displacement over one sampling interval stays below it.
	StationaryThresholdSq = 0.25

	DefaultTicksPerMinute = 20 * 60
)

type Phase uint8

const (
	PhaseSpawned Phase = iota
	PhaseActive
	PhaseExpired
	PhaseDied
)

func (p Phase) String() string {
	switch p {
	case PhaseSpawned:
		return "spawned"
	case PhaseActive:
		return "active"
	case PhaseExpired:
		return "expired"
	case PhaseDied:
		return "died"
	default:
		return "unknown"
	}
}

func (p Phase) Terminal() bool {
	return p == PhaseExpired || p == PhaseDied
}

// Latch is a one-way flag: Armed until fired, then Fired for good.
type Latch uint8

const (
	LatchArmed Latch = iota
	LatchFired
)

// Fire transitions Armed to Fired and reports whether this call did it.
func (l *Latch) Fire() bool {
	if *l == LatchFired {
		return false
	}
	*l = LatchFired
	return true
}

func (l Latch) Fired() bool {
	return l == LatchFired
}

type Config struct {
	ExpiryMinutes     int
	EnableExpiry      bool
	NotifyOnDeparture bool
	TicksPerMinute    int
}

func (c Config) ExpiryTicks() int {
	tpm := c.TicksPerMinute
	if tpm <= 0 {
		tpm = DefaultTicksPerMinute
	}
	return c.ExpiryMinutes * tpm
}

type Reason string

const (
	ReasonExpired Reason = "expired"
	ReasonDied    Reason = "died"
)

// Departure is emitted exactly once per agent, when it leaves the world.
type Departure struct {
	AgentID           string
	OriginTownID      string
	DestinationTownID string
	Reason            Reason
	Cause             string
	ShowMessage       bool
}

type Agent struct {
	ID                string
	OriginTownID      string
	DestinationTownID string
	SpawnTick         uint64
	Phase             Phase

	SpawnPosition town.Vec
	Current       town.Vec
	Recent        town.Vec
	SampleTicks   int

	ExpiryTicks int
	Stationary  bool

	SpawnCaptured  Latch
	Moved          Latch
	RideExtension  Latch
	OriginNotified Latch
	Arrived        Latch

	cfg Config
}

func NewAgent(id, originTownID, destinationTownID string, spawnTick uint64, cfg Config) *Agent {
	if destinationTownID == "" {
		destinationTownID = AnyTown
	}
	return &Agent{
		ID:                id,
		OriginTownID:      originTownID,
		DestinationTownID: destinationTownID,
		SpawnTick:         spawnTick,
		Phase:             PhaseSpawned,
		ExpiryTicks:       cfg.ExpiryTicks(),
		cfg:               cfg,
	}
}

func (a *Agent) Config() Config {
	return a.cfg
}

// SetPosition updates the live position. The first call also captures the
// spawn point; later calls never overwrite it.
func (a *Agent) SetPosition(p town.Vec) {
	if a.Phase.Terminal() {
		return
	}
	a.Current = p
	if a.SpawnCaptured.Fire() {
		a.SpawnPosition = p
		a.Recent = p
		a.Phase = PhaseActive
	}
}

// Tick advances one simulation step. It returns a departure when the agent
// expired during this tick.
func (a *Agent) Tick() (Departure, bool) {
	if a.Phase != PhaseActive {
		return Departure{}, false
	}
	if !a.Moved.Fired() && a.Current.DistanceSquared(a.SpawnPosition) > MovedThresholdSq {
		a.Moved.Fire()
	}

	a.SampleTicks++
	if a.SampleTicks >= PositionUpdateInterval {
		a.Stationary = a.Current.DistanceSquared(a.Recent) < StationaryThresholdSq
		a.Recent = a.Current
		a.SampleTicks = 0
	}

	if !a.cfg.EnableExpiry || !a.Stationary {
		return Departure{}, false
	}
	a.ExpiryTicks--
	if a.ExpiryTicks > 0 {
		return Departure{}, false
	}
	a.Phase = PhaseExpired
	return a.depart(ReasonExpired, "")
}

// BoardVehicle grants the one-time ride extension.
func (a *Agent) BoardVehicle() bool {
	if a.Phase.Terminal() {
		return false
	}
	if !a.RideExtension.Fire() {
		return false
	}
	a.ExpiryTicks = a.cfg.ExpiryTicks()
	return true
}

// Arrive records that the agent reached a town. Only the first arrival
// counts as a visit.
func (a *Agent) Arrive(townID string) bool {
	if a.Phase != PhaseActive || townID == a.OriginTownID {
		return false
	}
	if a.DestinationTownID != AnyTown && a.DestinationTownID != townID {
		return false
	}
	if !a.Arrived.Fire() {
		return false
	}
	a.DestinationTownID = townID
	return true
}

func (a *Agent) Die(cause string) (Departure, bool) {
	if a.Phase.Terminal() {
		return Departure{}, false
	}
	a.Phase = PhaseDied
	return a.depart(ReasonDied, cause)
}

func (a *Agent) depart(reason Reason, cause string) (Departure, bool) {
	if !a.OriginNotified.Fire() {
		return Departure{}, false
	}
	show := a.cfg.NotifyOnDeparture && (reason == ReasonDied || a.Moved.Fired())
	return Departure{
		AgentID:           a.ID,
		OriginTownID:      a.OriginTownID,
		DestinationTownID: a.DestinationTownID,
		Reason:            reason,
		Cause:             cause,
		ShowMessage:       show,
	}, true
}
