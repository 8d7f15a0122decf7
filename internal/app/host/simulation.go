package host

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"townsim/internal/app/auxcache"
	"townsim/internal/app/market"
	"townsim/internal/app/ports"
	"townsim/internal/app/registry"
	"townsim/internal/app/status"
	"townsim/internal/app/tourists"
	"townsim/internal/app/townsvc"
	"townsim/internal/domain/boundary"
	"townsim/internal/domain/tourist"
	"townsim/internal/domain/town"
)

type Config struct {
	Towns                townsvc.Config
	Tourists             tourist.Config
	MinDisplayRadius     int
	Currency             string
	DefaultContractTicks uint64
	AutosaveEvery        uint64
	BoundaryCheckEvery   uint64
	QueueSize            int
}

// DoubleClickWindow bounds the gap between the two clicks of a double click.
const DoubleClickWindow = 400 * time.Millisecond

func DefaultConfig() Config {
	return Config{
		Towns: townsvc.DefaultConfig(),
		Tourists: tourist.Config{
			ExpiryMinutes:     120,
			EnableExpiry:      true,
			NotifyOnDeparture: true,
			TicksPerMinute:    tourist.DefaultTicksPerMinute,
		},
		MinDisplayRadius:     5,
		Currency:             market.DefaultCurrency,
		DefaultContractTicks: market.DefaultContractTicks,
		AutosaveEvery:        6000,
		BoundaryCheckEvery:   200,
		QueueSize:            1024,
	}
}

// Stores are the persistence ports. Clock, Events and Tx may be nil.
type Stores struct {
	Towns     ports.TownRepository
	Contracts ports.ContractRepository
	Clock     ports.ClockRepository
	Events    ports.EventRepository
	Tx        ports.TxManager
}

type partitionState struct {
	registry  *registry.Registry
	towns     *townsvc.Service
	tourists  *tourists.Manager
	market    *market.Market
	crossings *auxcache.CrossingTracker
	savedTick uint64
}

// Simulation is the tick host. Every entry point takes the simulation lock,
// so town state is only ever touched by one goroutine at a time, the way a
// single game tick thread would.
type Simulation struct {
	Config   Config
	Stores   Stores
	Notifier ports.Notifier
	Metrics  ports.CommandMetrics
	Limiter  *auxcache.Debouncer
	Clicks   *auxcache.ClickTracker
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string

	mu         sync.Mutex
	registries *registry.Registries
	partitions map[string]*partitionState
	tick       uint64
	queue      chan queued
}

func NewSimulation(cfg Config, stores Stores, notifier ports.Notifier, logger *slog.Logger) *Simulation {
	if notifier == nil {
		notifier = ports.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	b := boundary.NewService(cfg.MinDisplayRadius, cfg.Towns.DefaultStartingPopulation)
	return &Simulation{
		Config:     cfg,
		Stores:     stores,
		Notifier:   notifier,
		Logger:     logger,
		Now:        time.Now,
		registries: registry.NewRegistries(b),
		partitions: map[string]*partitionState{},
		Clicks:     auxcache.NewClickTracker(DoubleClickWindow),
		queue:      make(chan queued, cfg.QueueSize),
	}
}

func (s *Simulation) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Tick is the number of completed OnTick calls.
func (s *Simulation) Tick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

func (s *Simulation) partition(id string) (*partitionState, error) {
	p, ok := s.partitions[id]
	if !ok {
		return nil, town.State(town.CodePartitionNotLoaded, "partition %s is not loaded", id)
	}
	return p, nil
}

func (s *Simulation) Partitions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partitionIDs()
}

func (s *Simulation) partitionIDs() []string {
	out := make([]string, 0, len(s.partitions))
	for id := range s.partitions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OnPartitionLoad builds the partition context and loads its towns and
// contracts. Loading an already loaded partition is a no-op.
func (s *Simulation) OnPartitionLoad(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partitions[partition]; ok {
		return nil
	}
	reg := s.registries.Init(partition)
	p := s.newPartitionState(reg)
	if s.Stores.Clock != nil {
		tick, err := s.Stores.Clock.LoadTick(ctx, partition)
		if err != nil {
			s.registries.Teardown(partition)
			return err
		}
		// The counter is shared by every partition and must never run
		// backwards, or deadlines that already passed would reopen.
		if tick > s.tick {
			s.tick = tick
		}
		p.savedTick = tick
	}
	if s.Stores.Towns != nil {
		if err := reg.Load(ctx, s.Stores.Towns); err != nil {
			s.registries.Teardown(partition)
			return err
		}
	}
	if s.Stores.Contracts != nil {
		if err := p.market.Load(ctx, s.Stores.Contracts); err != nil {
			s.registries.Teardown(partition)
			return err
		}
	}
	// Live agents are not persisted, so no town hosts any after a load.
	for _, t := range reg.All() {
		if t.TouristCount != 0 {
			t.TouristCount = 0
			reg.MarkDirty()
		}
	}
	s.partitions[partition] = p
	if vs := reg.Violations(); len(vs) > 0 {
		s.logViolations(partition, vs)
	}
	s.Logger.Info("partition loaded", "partition", partition, "towns", reg.Len(), "tick", s.tick)
	return nil
}

func (s *Simulation) newPartitionState(reg *registry.Registry) *partitionState {
	towns := townsvc.NewService(reg, s.Config.Towns, s.Logger)
	if s.NewID != nil {
		towns.NewID = s.NewID
	}
	towns.Now = s.now
	mgr := tourists.NewManager(towns, s.Config.Tourists, s.Notifier, s.Logger)
	mgr.RewardKind = s.Config.Currency
	mk := market.New(towns, func() uint64 { return s.tick }, s.Logger)
	if s.Config.Currency != "" {
		mk.Currency = s.Config.Currency
	}
	mk.DefaultTicks = s.Config.DefaultContractTicks
	if s.NewID != nil {
		mgr.NewID = s.NewID
		mk.NewID = s.NewID
	}
	return &partitionState{
		registry:  reg,
		towns:     towns,
		tourists:  mgr,
		market:    mk,
		crossings: auxcache.NewCrossingTracker(),
	}
}

// OnPartitionUnload saves the partition and tears its context down. The
// context is kept when the save fails.
func (s *Simulation) OnPartitionUnload(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	if err := s.save(ctx, partition, p, true); err != nil {
		return err
	}
	delete(s.partitions, partition)
	s.registries.Teardown(partition)
	s.Logger.Info("partition unloaded", "partition", partition)
	return nil
}

// OnTick advances every loaded partition by one tick, then drains commands
// queued with Submit.
func (s *Simulation) OnTick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	if s.Clicks != nil && s.Config.BoundaryCheckEvery > 0 && s.tick%s.Config.BoundaryCheckEvery == 0 {
		s.Clicks.Prune(s.now())
	}
	for _, id := range s.partitionIDs() {
		p := s.partitions[id]
		for _, dep := range p.tourists.OnTick(ctx) {
			s.appendEvent(ctx, id, dep.OriginTownID, "tourist_departed", map[string]any{
				"agent_id": dep.AgentID,
				"reason":   string(dep.Reason),
			})
		}
		if s.Config.BoundaryCheckEvery > 0 && s.tick%s.Config.BoundaryCheckEvery == 0 {
			if vs := p.registry.Violations(); len(vs) > 0 {
				s.logViolations(id, vs)
			}
		}
		if s.Config.AutosaveEvery > 0 && s.tick%s.Config.AutosaveEvery == 0 {
			if err := s.save(ctx, id, p, false); err != nil {
				s.Logger.Error("autosave failed", "partition", id, "error", err)
			}
		}
	}
	s.drain()
}

func (s *Simulation) logViolations(partition string, vs []boundary.Violation) {
	for _, v := range vs {
		s.Logger.Warn("boundary invariant violated",
			"partition", partition,
			"town_a", v.A,
			"town_b", v.B,
			"distance", v.Distance,
			"required", v.Required,
		)
	}
}

// Save persists every dirty partition.
func (s *Simulation) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.partitionIDs() {
		if err := s.save(ctx, id, s.partitions[id], false); err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) save(ctx context.Context, partition string, p *partitionState, force bool) error {
	tick := s.tick
	if !force && !p.registry.IsDirty() && !p.market.IsDirty() {
		if s.Stores.Clock == nil || p.savedTick == tick {
			return nil
		}
		if err := s.Stores.Clock.SaveTick(ctx, partition, tick); err != nil {
			return town.Internal("save partition %s clock: %v", partition, err)
		}
		p.savedTick = tick
		return nil
	}
	if s.Stores.Towns == nil {
		p.registry.ClearDirty()
		p.market.ClearDirty()
		return nil
	}
	run := func(ctx context.Context) error {
		if err := p.registry.Save(ctx, s.Stores.Towns); err != nil {
			return err
		}
		if s.Stores.Contracts != nil {
			if err := p.market.Save(ctx, s.Stores.Contracts); err != nil {
				return err
			}
		}
		if s.Stores.Clock != nil {
			return s.Stores.Clock.SaveTick(ctx, partition, tick)
		}
		return nil
	}
	var err error
	if s.Stores.Tx != nil {
		err = s.Stores.Tx.RunInTx(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		p.registry.MarkDirty()
		p.market.MarkDirty()
		return town.Internal("save partition %s: %v", partition, err)
	}
	p.savedTick = tick
	s.Logger.Info("partition saved", "partition", partition, "towns", p.registry.Len())
	return nil
}

// Run ticks the simulation every interval until ctx is done, then saves.
func (s *Simulation) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return s.Save(context.WithoutCancel(ctx))
		case <-ticker.C:
			s.OnTick(ctx)
		}
	}
}

// OnAgentPositionChanged forwards an engine position update to the agent.
func (s *Simulation) OnAgentPositionChanged(partition, agentID string, pos town.Vec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	return p.tourists.OnAgentPositionChanged(agentID, pos)
}

func (s *Simulation) OnAgentBoarded(partition, agentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return false, err
	}
	return p.tourists.OnAgentBoarded(agentID)
}

func (s *Simulation) OnAgentDied(ctx context.Context, partition, agentID, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	a, err := p.tourists.Agent(agentID)
	if err != nil {
		return err
	}
	origin := a.OriginTownID
	if err := p.tourists.OnAgentDied(ctx, agentID, cause); err != nil {
		return err
	}
	s.appendEvent(ctx, partition, origin, "tourist_died", map[string]any{"agent_id": agentID, "cause": cause})
	return nil
}

// OnAgentArrived books a tourist's visit when it reaches townID.
func (s *Simulation) OnAgentArrived(ctx context.Context, partition, agentID, townID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return false, err
	}
	visit, ok, err := p.tourists.OnAgentArrived(ctx, agentID, townID)
	if err != nil || !ok {
		return ok, err
	}
	payload := townPayload(p, townID)
	payload["agent_id"] = agentID
	payload["reward"] = visit.Reward
	payload["origin_town_id"] = visit.OriginTownID
	s.appendEvent(ctx, partition, townID, "visit_recorded", payload)
	return true, nil
}

// OnPlayerPositionChanged tracks which town a player stands in and
// announces border crossings.
func (s *Simulation) OnPlayerPositionChanged(ctx context.Context, partition, player string, pos town.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	current := ""
	if t, ok := p.registry.TownAt(pos); ok {
		current = t.ID
	}
	crossing, changed := p.crossings.Update(player, current)
	if !changed {
		return nil
	}
	s.announceCrossing(ctx, partition, p, crossing)
	return nil
}

// OnTownClicked handles a player interacting with a town anchor. A single
// click sends the town card to the player; a second click on the same town
// within DoubleClickWindow opens its platform list instead. The click
// tracker is safe to use before taking the simulation lock.
func (s *Simulation) OnTownClicked(ctx context.Context, partition, player, townID string) (status.TownView, bool, error) {
	double := false
	if s.Clicks != nil {
		double = s.Clicks.Click(player, partition+"/"+townID, s.now())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.partition(partition); err != nil {
		return status.TownView{}, false, err
	}
	view, err := s.statusUseCase().Town(status.TownRequest{Partition: partition, TownID: townID, Player: player})
	if err != nil {
		return status.TownView{}, false, err
	}
	n := townNotification(partition, "town_card", view)
	if double {
		n = ports.Notification{Type: "town_platforms", Partition: partition, TownID: townID, Payload: view.Platforms}
	}
	n.Recipient = player
	s.Notifier.Publish(ctx, n)
	return view, double, nil
}

func (s *Simulation) announceCrossing(ctx context.Context, partition string, p *partitionState, c auxcache.Crossing) {
	if c.Left() {
		name := ""
		if t, err := p.registry.Get(c.From); err == nil {
			name = t.Name
		}
		s.Notifier.Publish(ctx, ports.Notification{
			Type:      "town_left",
			Partition: partition,
			TownID:    c.From,
			Recipient: c.Player,
			Payload:   map[string]any{"town_name": name},
		})
	}
	if c.Entered() {
		if t, err := p.registry.Get(c.To); err == nil {
			s.Notifier.Publish(ctx, ports.Notification{
				Type:      "town_entered",
				Partition: partition,
				TownID:    t.ID,
				Recipient: c.Player,
				Payload:   map[string]any{"town_name": t.Name, "population": t.Population},
			})
		}
	}
}

// record appends a history event and publishes the matching notification.
func (s *Simulation) record(ctx context.Context, partition, townID, typ string, payload map[string]any) {
	s.appendEvent(ctx, partition, townID, typ, payload)
	s.Notifier.Publish(ctx, ports.Notification{
		Type:      typ,
		Partition: partition,
		TownID:    townID,
		Payload:   payload,
	})
}

func (s *Simulation) appendEvent(ctx context.Context, partition, townID, typ string, payload map[string]any) {
	if s.Stores.Events == nil || townID == "" {
		return
	}
	evt := ports.Event{
		Partition:  partition,
		TownID:     townID,
		Type:       typ,
		Tick:       s.tick,
		OccurredAt: s.now(),
		Payload:    payload,
	}
	if err := s.Stores.Events.Append(ctx, []ports.Event{evt}); err != nil {
		s.Logger.Warn("event append failed", "partition", partition, "town_id", townID, "type", typ, "error", err)
	}
}

func townPayload(p *partitionState, townID string) map[string]any {
	t, err := p.registry.Get(townID)
	if err != nil {
		return map[string]any{}
	}
	return map[string]any{
		"name":           t.Name,
		"population":     t.Population,
		"tourist_count":  t.TouristCount,
		"total_visitors": t.TotalVisitors,
	}
}

func (s *Simulation) statusUseCase() status.UseCase {
	return status.UseCase{Registries: s.registries, TownConfig: s.Config.Towns}
}
