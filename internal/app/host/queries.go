package host

import (
	"townsim/internal/app/ports"
	"townsim/internal/app/status"
	"townsim/internal/domain/contract"
	"townsim/internal/domain/tourist"
	"townsim/internal/domain/town"
)

type AgentView struct {
	ID                string   `json:"id"`
	OriginTownID      string   `json:"origin_town_id"`
	DestinationTownID string   `json:"destination_town_id"`
	Phase             string   `json:"phase"`
	SpawnTick         uint64   `json:"spawn_tick"`
	Position          town.Vec `json:"position"`
	Moved             bool     `json:"moved"`
	Stationary        bool     `json:"stationary"`
	ExpiryTicks       int      `json:"expiry_ticks"`
	RideExtended      bool     `json:"ride_extended"`
}

func agentView(a *tourist.Agent) AgentView {
	return AgentView{
		ID:                a.ID,
		OriginTownID:      a.OriginTownID,
		DestinationTownID: a.DestinationTownID,
		Phase:             a.Phase.String(),
		SpawnTick:         a.SpawnTick,
		Position:          a.Current,
		Moved:             a.Moved.Fired(),
		Stationary:        a.Stationary,
		ExpiryTicks:       a.ExpiryTicks,
		RideExtended:      a.RideExtension.Fired(),
	}
}

func townNotification(partition, typ string, view status.TownView) ports.Notification {
	return ports.Notification{Type: typ, Partition: partition, TownID: view.ID, Payload: view}
}

func contractNotification(partition string, k *contract.Contract) ports.Notification {
	return ports.Notification{Type: "contract_updated", Partition: partition, TownID: k.IssuerTownID, Payload: k}
}

func paymentNotification(partition string, p contract.Payment, typ string) ports.Notification {
	return ports.Notification{Type: typ, Partition: partition, TownID: p.TownID, Recipient: p.Recipient, Payload: p}
}

func townLeftNotification(partition string, t *town.Town, player string) ports.Notification {
	return ports.Notification{
		Type:      "town_left",
		Partition: partition,
		TownID:    t.ID,
		Recipient: player,
		Payload:   map[string]any{"town_name": t.Name, "removed": true},
	}
}

func (s *Simulation) Town(req status.TownRequest) (status.TownView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusUseCase().Town(req)
}

func (s *Simulation) Towns(partition string) ([]status.TownView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusUseCase().Towns(partition)
}

func (s *Simulation) BoundarySync(req status.BoundaryRequest) ([]status.BoundaryView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusUseCase().BoundarySync(req)
}

func (s *Simulation) Platforms(partition, townID string, enabledOnly bool) ([]town.Platform, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusUseCase().Platforms(partition, townID, enabledOnly)
}

// TownAt resolves the town containing pos, if any.
func (s *Simulation) TownAt(partition string, pos town.Position) (status.TownView, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return status.TownView{}, false, err
	}
	t, ok := p.registry.TownAt(pos)
	if !ok {
		return status.TownView{}, false, nil
	}
	v, err := s.statusUseCase().Town(status.TownRequest{Partition: partition, TownID: t.ID})
	return v, err == nil, err
}

// Contracts lists contracts of kind with their state presented at the
// current tick.
func (s *Simulation) Contracts(partition string, kind contract.Kind) ([]*contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	switch kind {
	case contract.KindSell:
		return p.market.ListSell(), nil
	case contract.KindCourier:
		return p.market.ListCourier(), nil
	default:
		return append(p.market.ListSell(), p.market.ListCourier()...), nil
	}
}

func (s *Simulation) Contract(partition, id string) (*contract.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.market.Get(id)
}

func (s *Simulation) Payments(partition, townID string) ([]contract.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	if _, err := p.registry.Get(townID); err != nil {
		return nil, err
	}
	return p.market.Payments(townID), nil
}

func (s *Simulation) Agents(partition string) ([]AgentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	agents := p.tourists.Agents()
	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentView(a))
	}
	return out, nil
}
