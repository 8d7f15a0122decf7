package host

import (
	"context"
	"errors"
	"strings"

	"townsim/internal/app/market"
	"townsim/internal/app/status"
	"townsim/internal/domain/contract"
	"townsim/internal/domain/town"
)

// Envelope carries what every command shares: the partition it targets and
// the player issuing it. Actor is empty for console and system commands.
type Envelope struct {
	Partition string `json:"partition"`
	Actor     string `json:"actor,omitempty"`
}

func (e Envelope) Meta() Envelope { return e }

// SetMeta overwrites the envelope; transports use it after decoding a body.
func (e *Envelope) SetMeta(env Envelope) { *e = env }

type Command interface {
	Name() string
	Meta() Envelope
}

type CreateTown struct {
	Envelope
	TownName  string         `json:"name"`
	Position  town.Position  `json:"position"`
	Resources map[string]int `json:"resources,omitempty"`
}

type SetName struct {
	Envelope
	TownID   string `json:"town_id"`
	TownName string `json:"name"`
}

type SetSearchRadius struct {
	Envelope
	TownID string `json:"town_id"`
	Radius int    `json:"radius"`
}

type SetSpawning struct {
	Envelope
	TownID  string `json:"town_id"`
	Enabled bool   `json:"enabled"`
}

type AddResources struct {
	Envelope
	TownID   string `json:"town_id"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

type RemoveResources struct {
	Envelope
	TownID   string `json:"town_id"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

type TradeResource struct {
	Envelope
	FromTownID string `json:"from_town_id"`
	ToTownID   string `json:"to_town_id"`
	Resource   string `json:"resource"`
	Amount     int    `json:"amount"`
}

type ExpandPopulation struct {
	Envelope
	TownID string `json:"town_id"`
	Amount int    `json:"amount"`
}

type DepositStorage struct {
	Envelope
	TownID   string `json:"town_id"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

type WithdrawStorage struct {
	Envelope
	TownID   string `json:"town_id"`
	Resource string `json:"resource"`
	Amount   int    `json:"amount"`
}

type AddPlatform struct {
	Envelope
	TownID       string        `json:"town_id"`
	PlatformName string        `json:"name"`
	Start        town.Position `json:"start"`
	End          town.Position `json:"end"`
}

type RemovePlatform struct {
	Envelope
	TownID     string `json:"town_id"`
	PlatformID string `json:"platform_id"`
}

type SetPlatformEnabled struct {
	Envelope
	TownID     string `json:"town_id"`
	PlatformID string `json:"platform_id"`
	Enabled    bool   `json:"enabled"`
}

type PostSell struct {
	Envelope
	TownID   string `json:"town_id"`
	Resource string `json:"resource"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price"`
	Ticks    uint64 `json:"ticks,omitempty"`
}

type PostCourier struct {
	Envelope
	TownID            string `json:"town_id"`
	DestinationTownID string `json:"destination_town_id"`
	Resource          string `json:"resource"`
	Quantity          int    `json:"quantity"`
	Reward            int    `json:"reward"`
	Ticks             uint64 `json:"ticks,omitempty"`
}

type BidContract struct {
	Envelope
	ContractID string `json:"contract_id"`
	Amount     int    `json:"amount"`
}

// AcceptContract accepts on behalf of Actor. For a sale, Buyer may name
// another player to award; only a bidder whose bid covers the price
// qualifies.
type AcceptContract struct {
	Envelope
	ContractID string `json:"contract_id"`
	Buyer      string `json:"buyer,omitempty"`
}

type CompleteContract struct {
	Envelope
	ContractID string `json:"contract_id"`
}

type ReclaimContract struct {
	Envelope
	ContractID string `json:"contract_id"`
}

type ClaimPayment struct {
	Envelope
	TownID    string `json:"town_id"`
	PaymentID string `json:"payment_id"`
}

type RemoveTown struct {
	Envelope
	TownID string `json:"town_id"`
}

type SpawnTourist struct {
	Envelope
	TownID            string   `json:"town_id"`
	DestinationTownID string   `json:"destination_town_id,omitempty"`
	Position          town.Vec `json:"position"`
}

func (CreateTown) Name() string         { return "create_town" }
func (SetName) Name() string            { return "set_name" }
func (SetSearchRadius) Name() string    { return "set_search_radius" }
func (SetSpawning) Name() string        { return "set_spawning" }
func (AddResources) Name() string       { return "add_resources" }
func (RemoveResources) Name() string    { return "remove_resources" }
func (TradeResource) Name() string      { return "trade_resource" }
func (ExpandPopulation) Name() string   { return "expand_population" }
func (DepositStorage) Name() string     { return "deposit_storage" }
func (WithdrawStorage) Name() string    { return "withdraw_storage" }
func (AddPlatform) Name() string        { return "add_platform" }
func (RemovePlatform) Name() string     { return "remove_platform" }
func (SetPlatformEnabled) Name() string { return "set_platform_enabled" }
func (PostSell) Name() string           { return "post_sell" }
func (PostCourier) Name() string        { return "post_courier" }
func (BidContract) Name() string        { return "bid_contract" }
func (AcceptContract) Name() string     { return "accept_contract" }
func (CompleteContract) Name() string   { return "complete_contract" }
func (ReclaimContract) Name() string    { return "reclaim_contract" }
func (ClaimPayment) Name() string       { return "claim_payment" }
func (RemoveTown) Name() string         { return "remove_town" }
func (SpawnTourist) Name() string       { return "spawn_tourist" }

// Reply is the outcome of a queued command.
type Reply struct {
	Value any
	Err   error
}

type queued struct {
	ctx   context.Context
	cmd   Command
	reply chan Reply
}

// Submit queues cmd for the next tick. The returned channel receives exactly
// one reply once OnTick has executed it.
func (s *Simulation) Submit(ctx context.Context, cmd Command) <-chan Reply {
	reply := make(chan Reply, 1)
	select {
	case s.queue <- queued{ctx: ctx, cmd: cmd, reply: reply}:
	default:
		reply <- Reply{Err: town.State(town.CodeRateLimited, "command queue is full")}
	}
	return reply
}

func (s *Simulation) drain() {
	for {
		select {
		case q := <-s.queue:
			if err := q.ctx.Err(); err != nil {
				q.reply <- Reply{Err: err}
				continue
			}
			v, err := s.dispatch(q.ctx, q.cmd)
			q.reply <- Reply{Value: v, Err: err}
		default:
			return
		}
	}
}

// Dispatch executes cmd immediately under the simulation lock.
func (s *Simulation) Dispatch(ctx context.Context, cmd Command) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch(ctx, cmd)
}

func (s *Simulation) dispatch(ctx context.Context, cmd Command) (any, error) {
	meta := cmd.Meta()
	if meta.Actor != "" && s.Limiter != nil && !s.Limiter.Allow(meta.Partition+"/"+meta.Actor, s.now()) {
		err := town.State(town.CodeRateLimited, "%s is sending commands too quickly", meta.Actor)
		s.observe(cmd, err)
		return nil, err
	}
	v, err := s.execute(ctx, cmd)
	s.observe(cmd, err)
	if err != nil {
		s.Logger.Debug("command rejected", "command", cmd.Name(), "partition", meta.Partition, "actor", meta.Actor, "code", town.CodeOf(err), "error", err)
	}
	return v, err
}

func (s *Simulation) observe(cmd Command, err error) {
	if s.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.Metrics.RecordSuccess(cmd.Name())
	case errors.Is(err, town.ErrInternal) || town.CodeOf(err) == "":
		s.Metrics.RecordFailure(cmd.Name())
	default:
		s.Metrics.RecordRejected(cmd.Name(), town.CodeOf(err))
	}
}

func (s *Simulation) execute(ctx context.Context, cmd Command) (any, error) {
	meta := cmd.Meta()
	p, err := s.partition(meta.Partition)
	if err != nil {
		return nil, err
	}
	svc := p.towns

	switch c := cmd.(type) {
	case CreateTown:
		t, err := svc.CreateTown(c.TownName, c.Position, c.Resources)
		if err != nil {
			return nil, err
		}
		return s.townChanged(ctx, meta.Partition, t.ID, "town_created")

	case SetName:
		return s.updateTown(ctx, meta.Partition, p, c.TownID, town.Settings{Name: &c.TownName})

	case SetSearchRadius:
		return s.updateTown(ctx, meta.Partition, p, c.TownID, town.Settings{SearchRadius: &c.Radius})

	case SetSpawning:
		return s.updateTown(ctx, meta.Partition, p, c.TownID, town.Settings{TouristSpawningEnabled: &c.Enabled})

	case AddResources:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		if err := svc.AddResources(t, c.Resource, c.Amount); err != nil {
			return nil, err
		}
		return s.townChanged(ctx, meta.Partition, t.ID, "town_updated")

	case RemoveResources:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		if err := svc.RemoveResources(t, c.Resource, c.Amount); err != nil {
			return nil, err
		}
		return s.townChanged(ctx, meta.Partition, t.ID, "town_updated")

	case TradeResource:
		from, err := svc.Get(c.FromTownID)
		if err != nil {
			return nil, err
		}
		to, err := svc.Get(c.ToTownID)
		if err != nil {
			return nil, err
		}
		if err := svc.TradeResource(from, to, c.Resource, c.Amount); err != nil {
			return nil, err
		}
		if _, err := s.townChanged(ctx, meta.Partition, to.ID, "town_updated"); err != nil {
			return nil, err
		}
		return s.townChanged(ctx, meta.Partition, from.ID, "town_updated")

	case ExpandPopulation:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		if err := svc.ExpandPopulation(t, c.Amount); err != nil {
			return nil, err
		}
		return s.townChanged(ctx, meta.Partition, t.ID, "town_grew")

	case DepositStorage:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		if err := svc.DepositPersonal(t, meta.Actor, c.Resource, c.Amount); err != nil {
			return nil, err
		}
		return s.statusUseCase().Town(statusRequest(meta, t.ID))

	case WithdrawStorage:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		if err := svc.WithdrawPersonal(t, meta.Actor, c.Resource, c.Amount); err != nil {
			return nil, err
		}
		return s.statusUseCase().Town(statusRequest(meta, t.ID))

	case AddPlatform:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		pl, err := svc.AddPlatform(t, c.PlatformName, c.Start, c.End)
		if err != nil {
			return nil, err
		}
		s.record(ctx, meta.Partition, t.ID, "platform_added", map[string]any{"platform_id": pl.ID, "name": pl.Name})
		return pl, nil

	case RemovePlatform:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		if err := svc.RemovePlatform(t, c.PlatformID); err != nil {
			return nil, err
		}
		return s.townChanged(ctx, meta.Partition, t.ID, "town_updated")

	case SetPlatformEnabled:
		t, err := svc.Get(c.TownID)
		if err != nil {
			return nil, err
		}
		if err := svc.SetPlatformEnabled(t, c.PlatformID, c.Enabled); err != nil {
			return nil, err
		}
		return s.townChanged(ctx, meta.Partition, t.ID, "town_updated")

	case PostSell:
		k, err := p.market.PostSell(market.SellInput{
			IssuerTownID: c.TownID,
			ResourceID:   c.Resource,
			Quantity:     c.Quantity,
			Price:        c.Price,
			Ticks:        c.Ticks,
		})
		return s.contractChanged(ctx, meta.Partition, k, err)

	case PostCourier:
		k, err := p.market.PostCourier(market.CourierInput{
			IssuerTownID:      c.TownID,
			DestinationTownID: c.DestinationTownID,
			ResourceID:        c.Resource,
			Quantity:          c.Quantity,
			Reward:            c.Reward,
			Ticks:             c.Ticks,
		})
		return s.contractChanged(ctx, meta.Partition, k, err)

	case BidContract:
		k, err := p.market.Bid(c.ContractID, meta.Actor, c.Amount)
		return s.contractChanged(ctx, meta.Partition, k, err)

	case AcceptContract:
		buyer := strings.TrimSpace(c.Buyer)
		if buyer != "" && buyer != meta.Actor {
			if meta.Actor == "" {
				return nil, town.Validation(town.CodeNotAuthorized, "acting player is required")
			}
			k, err := p.market.Award(c.ContractID, buyer)
			return s.contractChanged(ctx, meta.Partition, k, err)
		}
		k, err := p.market.Accept(c.ContractID, meta.Actor)
		return s.contractChanged(ctx, meta.Partition, k, err)

	case CompleteContract:
		k, paid, err := p.market.Complete(c.ContractID, meta.Actor)
		if err != nil {
			return nil, err
		}
		for _, pay := range paid {
			s.Notifier.Publish(ctx, paymentNotification(meta.Partition, pay, "payment_posted"))
		}
		return s.contractChanged(ctx, meta.Partition, k, nil)

	case ReclaimContract:
		k, err := p.market.Reclaim(c.ContractID)
		return s.contractChanged(ctx, meta.Partition, k, err)

	case ClaimPayment:
		pay, err := p.market.ClaimPayment(c.TownID, c.PaymentID, meta.Actor)
		if err != nil {
			return nil, err
		}
		s.appendEvent(ctx, meta.Partition, pay.TownID, "payment_claimed", map[string]any{
			"payment_id": pay.ID,
			"recipient":  pay.Recipient,
			"resource":   pay.ResourceID,
			"amount":     pay.Amount,
		})
		s.Notifier.Publish(ctx, paymentNotification(meta.Partition, pay, "payment_claimed"))
		return pay, nil

	case RemoveTown:
		t, err := svc.RemoveTown(c.TownID)
		if err != nil {
			return nil, err
		}
		dropped := p.tourists.Forget(t.ID)
		for _, player := range p.crossings.ForgetTown(t.ID) {
			s.Notifier.Publish(ctx, townLeftNotification(meta.Partition, t, player))
		}
		s.record(ctx, meta.Partition, t.ID, "town_removed", map[string]any{"name": t.Name, "tourists_dropped": dropped})
		return map[string]any{"town_id": t.ID, "removed": true}, nil

	case SpawnTourist:
		a, err := p.tourists.Spawn(c.TownID, c.DestinationTownID, c.Position)
		if err != nil {
			return nil, err
		}
		s.appendEvent(ctx, meta.Partition, c.TownID, "tourist_spawned", map[string]any{
			"agent_id":            a.ID,
			"destination_town_id": a.DestinationTownID,
		})
		return agentView(a), nil
	}
	return nil, town.Internal("unsupported command %T", cmd)
}

func statusRequest(meta Envelope, townID string) status.TownRequest {
	return status.TownRequest{Partition: meta.Partition, TownID: townID, Player: meta.Actor}
}

func (s *Simulation) updateTown(ctx context.Context, partition string, p *partitionState, townID string, settings town.Settings) (any, error) {
	t, err := p.towns.Get(townID)
	if err != nil {
		return nil, err
	}
	if err := p.towns.UpdateTownSettings(t, settings); err != nil {
		return nil, err
	}
	return s.townChanged(ctx, partition, t.ID, "town_updated")
}

// townChanged records the change and returns the fresh projection.
func (s *Simulation) townChanged(ctx context.Context, partition, townID, typ string) (any, error) {
	view, err := s.statusUseCase().Town(status.TownRequest{Partition: partition, TownID: townID})
	if err != nil {
		return nil, err
	}
	p := s.partitions[partition]
	s.appendEvent(ctx, partition, townID, typ, townPayload(p, townID))
	s.Notifier.Publish(ctx, townNotification(partition, typ, view))
	return view, nil
}

func (s *Simulation) contractChanged(ctx context.Context, partition string, k *contract.Contract, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	s.appendEvent(ctx, partition, k.IssuerTownID, "contract_updated", map[string]any{
		"contract_id": k.ID,
		"kind":        string(k.Kind),
		"state":       string(k.State),
	})
	s.Notifier.Publish(ctx, contractNotification(partition, k))
	return k, nil
}
