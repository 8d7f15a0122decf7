package tourists

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"townsim/internal/app/ports"
	"townsim/internal/app/townsvc"
	"townsim/internal/domain/business"
	"townsim/internal/domain/tourist"
	"townsim/internal/domain/town"
)

const (
	NotificationDeparted = "tourist_departed"
	NotificationArrived  = "tourist_arrived"
)

// Manager drives the tourist agents of one partition from the tick host.
type Manager struct {
	Towns      *townsvc.Service
	Notifier   ports.Notifier
	Config     tourist.Config
	RewardKind string
	Logger     *slog.Logger
	NewID      func() string

	agents map[string]*tourist.Agent
	tick   uint64
}

func NewManager(towns *townsvc.Service, cfg tourist.Config, notifier ports.Notifier, logger *slog.Logger) *Manager {
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		Towns:    towns,
		Notifier: notifier,
		Config:   cfg,
		Logger:   logger.With("partition", towns.Registry.Partition()),
		NewID:    uuid.NewString,
		agents:   map[string]*tourist.Agent{},
	}
}

func (m *Manager) partition() string {
	return m.Towns.Registry.Partition()
}

func (m *Manager) Tick() uint64 {
	return m.tick
}

// Spawn admits a new tourist from origin. The looser population gate is
// checked first, then the town service enforces its hard capacity.
func (m *Manager) Spawn(originTownID, destinationTownID string, pos town.Vec) (*tourist.Agent, error) {
	origin, err := m.Towns.Get(originTownID)
	if err != nil {
		return nil, err
	}
	if destinationTownID != "" && destinationTownID != tourist.AnyTown {
		if _, err := m.Towns.Get(destinationTownID); err != nil {
			return nil, err
		}
	}
	if !m.Towns.CanSpawnTourists(origin) {
		return nil, town.State(town.CodeSpawningDisabled, "%s cannot spawn tourists (population %d)", origin.Name, origin.Population)
	}
	if !m.Towns.CanSpawnMore(origin) {
		return nil, town.State(town.CodeTouristLimitReached, "%s has reached its tourist allowance", origin.Name)
	}
	if err := m.Towns.AddTourist(origin); err != nil {
		return nil, err
	}
	a := tourist.NewAgent(m.NewID(), origin.ID, destinationTownID, m.tick, m.Config)
	a.SetPosition(pos)
	m.agents[a.ID] = a
	m.Logger.Debug("tourist spawned", "agent_id", a.ID, "origin_town_id", origin.ID, "destination_town_id", a.DestinationTownID)
	return a, nil
}

func (m *Manager) Agent(id string) (*tourist.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, town.NotFound(town.CodeAgentNotFound, "tourist %s not found", id)
	}
	return a, nil
}

func (m *Manager) Agents() []*tourist.Agent {
	out := make([]*tourist.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) OnAgentPositionChanged(agentID string, pos town.Vec) error {
	a, err := m.Agent(agentID)
	if err != nil {
		return err
	}
	a.SetPosition(pos)
	return nil
}

func (m *Manager) OnAgentBoarded(agentID string) (bool, error) {
	a, err := m.Agent(agentID)
	if err != nil {
		return false, err
	}
	return a.BoardVehicle(), nil
}

// OnAgentArrived books the visit at the destination the first time the
// agent reaches a town other than its origin.
func (m *Manager) OnAgentArrived(ctx context.Context, agentID, townID string) (business.Visit, bool, error) {
	a, err := m.Agent(agentID)
	if err != nil {
		return business.Visit{}, false, err
	}
	dest, err := m.Towns.Get(townID)
	if err != nil {
		return business.Visit{}, false, err
	}
	if !a.Arrive(townID) {
		return business.Visit{}, false, nil
	}
	origin, err := m.Towns.Get(a.OriginTownID)
	if err != nil {
		// Origin is gone; the visit still counts, without a distance reward.
		out, verr := m.Towns.ProcessVisitor(dest, a.ID, "")
		return business.Visit{DestinationTownID: dest.ID, TouristCount: 1}, out.Growth > 0, verr
	}
	visit, out, err := m.Towns.RecordTouristVisit(dest, origin, 1, m.RewardKind)
	if err != nil {
		return visit, false, err
	}
	m.Notifier.Publish(ctx, ports.Notification{
		Type:      NotificationArrived,
		Partition: m.partition(),
		TownID:    dest.ID,
		Payload: map[string]any{
			"agent_id":       a.ID,
			"origin_town_id": origin.ID,
			"reward":         visit.Reward,
			"distance":       visit.Distance,
			"growth":         out.Growth,
			"population":     out.Population,
		},
	})
	return visit, true, nil
}

func (m *Manager) OnAgentDied(ctx context.Context, agentID, cause string) error {
	a, err := m.Agent(agentID)
	if err != nil {
		return err
	}
	if dep, ok := a.Die(cause); ok {
		m.depart(ctx, dep)
	}
	delete(m.agents, agentID)
	return nil
}

// OnTick advances every agent one step and returns the departures it caused.
// Each agent's own evaluation happens before its origin is notified.
func (m *Manager) OnTick(ctx context.Context) []tourist.Departure {
	m.tick++
	var out []tourist.Departure
	for _, a := range m.Agents() {
		dep, ok := a.Tick()
		if !ok {
			continue
		}
		m.depart(ctx, dep)
		delete(m.agents, a.ID)
		out = append(out, dep)
	}
	return out
}

// Forget drops every agent spawned from townID without notifying, used when
// the town itself is removed.
func (m *Manager) Forget(townID string) int {
	n := 0
	for id, a := range m.agents {
		if a.OriginTownID == townID {
			delete(m.agents, id)
			n++
		}
	}
	return n
}

func (m *Manager) depart(ctx context.Context, dep tourist.Departure) {
	origin, err := m.Towns.Get(dep.OriginTownID)
	if err != nil {
		m.Logger.Debug("tourist origin missing on departure", "agent_id", dep.AgentID, "origin_town_id", dep.OriginTownID)
		return
	}
	if err := m.Towns.RemoveTourist(origin); err != nil {
		m.Logger.Warn("tourist count out of sync", "town_id", origin.ID, "agent_id", dep.AgentID, "error", err)
	}
	if !dep.ShowMessage {
		return
	}
	m.Notifier.Publish(ctx, ports.Notification{
		Type:      NotificationDeparted,
		Partition: m.partition(),
		TownID:    origin.ID,
		Payload: map[string]any{
			"agent_id":            dep.AgentID,
			"reason":              string(dep.Reason),
			"cause":               dep.Cause,
			"destination_town_id": dep.DestinationTownID,
			"town_name":           origin.Name,
			"tourist_count":       origin.TouristCount,
		},
	})
}
