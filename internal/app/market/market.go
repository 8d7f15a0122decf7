package market

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"townsim/internal/app/ports"
	"townsim/internal/app/townsvc"
	"townsim/internal/domain/contract"
	"townsim/internal/domain/town"
)

const (
	DefaultCurrency      = "emerald"
	DefaultContractTicks = 24000
)

type SellInput struct {
	IssuerTownID string
	ResourceID   string
	Quantity     int
	Price        int
	Ticks        uint64
}

type CourierInput struct {
	IssuerTownID      string
	DestinationTownID string
	ResourceID        string
	Quantity          int
	Reward            int
	Ticks             uint64
}

// Market holds the contracts and payment board of one partition. Goods and
// rewards are escrowed out of the issuing town when a contract is posted.
type Market struct {
	Towns        *townsvc.Service
	Currency     string
	DefaultTicks uint64
	Now          func() uint64
	NewID        func() string
	Logger       *slog.Logger

	contracts map[string]*contract.Contract
	payments  map[string]*contract.Payment
	dirty     bool
}

func New(towns *townsvc.Service, now func() uint64, logger *slog.Logger) *Market {
	if logger == nil {
		logger = slog.Default()
	}
	return &Market{
		Towns:        towns,
		Currency:     DefaultCurrency,
		DefaultTicks: DefaultContractTicks,
		Now:          now,
		NewID:        uuid.NewString,
		Logger:       logger.With("partition", towns.Registry.Partition()),
		contracts:    map[string]*contract.Contract{},
		payments:     map[string]*contract.Payment{},
	}
}

func (m *Market) now() uint64 {
	if m.Now == nil {
		return 0
	}
	return m.Now()
}

func (m *Market) partition() string {
	return m.Towns.Registry.Partition()
}

func (m *Market) ticks(requested uint64) uint64 {
	if requested > 0 {
		return requested
	}
	if m.DefaultTicks > 0 {
		return m.DefaultTicks
	}
	return DefaultContractTicks
}

func (m *Market) IsDirty() bool {
	return m.dirty
}

func (m *Market) MarkDirty() {
	m.dirty = true
}

// ClearDirty is for hosts without a contract store.
func (m *Market) ClearDirty() {
	m.dirty = false
}

func (m *Market) PostSell(in SellInput) (*contract.Contract, error) {
	if in.Price < 0 {
		return nil, town.Validation(town.CodeInvalidAmount, "price must not be negative, got %d", in.Price)
	}
	issuer, err := m.Towns.Get(in.IssuerTownID)
	if err != nil {
		return nil, err
	}
	resource := strings.TrimSpace(in.ResourceID)
	if err := m.Towns.RemoveResources(issuer, resource, in.Quantity); err != nil {
		return nil, err
	}
	now := m.now()
	c := &contract.Contract{
		ID:           m.NewID(),
		Kind:         contract.KindSell,
		Partition:    m.partition(),
		IssuerTownID: issuer.ID,
		ResourceID:   resource,
		Quantity:     in.Quantity,
		CreatedTick:  now,
		ExpiryTick:   now + m.ticks(in.Ticks),
		Bids:         map[string]int{},
		State:        contract.StateOpen,
		Price:        in.Price,
	}
	m.contracts[c.ID] = c
	m.dirty = true
	m.Logger.Info("sell contract posted", "contract_id", c.ID, "town_id", issuer.ID, "resource", resource, "quantity", in.Quantity, "price", in.Price)
	return c.Clone(), nil
}

// PostCourier escrows both the goods and the courier's reward.
func (m *Market) PostCourier(in CourierInput) (*contract.Contract, error) {
	if in.Reward < 0 {
		return nil, town.Validation(town.CodeInvalidAmount, "reward must not be negative, got %d", in.Reward)
	}
	if in.IssuerTownID == in.DestinationTownID {
		return nil, town.Validation(town.CodeSelfDeal, "courier destination must differ from the issuing town")
	}
	issuer, err := m.Towns.Get(in.IssuerTownID)
	if err != nil {
		return nil, err
	}
	dest, err := m.Towns.Get(in.DestinationTownID)
	if err != nil {
		return nil, err
	}
	resource := strings.TrimSpace(in.ResourceID)
	if in.Quantity <= 0 {
		return nil, town.Validation(town.CodeInvalidAmount, "quantity must be positive, got %d", in.Quantity)
	}
	need := map[string]int{resource: in.Quantity}
	if in.Reward > 0 {
		need[m.Currency] += in.Reward
	}
	for kind, amount := range need {
		if have := issuer.Resource(kind); have < amount {
			return nil, town.Validation(town.CodeInsufficientResources, "%s has %d %s, needs %d", issuer.Name, have, kind, amount)
		}
	}
	for kind, amount := range need {
		if err := m.Towns.RemoveResources(issuer, kind, amount); err != nil {
			return nil, err
		}
	}
	now := m.now()
	c := &contract.Contract{
		ID:                m.NewID(),
		Kind:              contract.KindCourier,
		Partition:         m.partition(),
		IssuerTownID:      issuer.ID,
		ResourceID:        resource,
		Quantity:          in.Quantity,
		CreatedTick:       now,
		ExpiryTick:        now + m.ticks(in.Ticks),
		Bids:              map[string]int{},
		State:             contract.StateOpen,
		DestinationTownID: dest.ID,
		Reward:            in.Reward,
	}
	m.contracts[c.ID] = c
	m.dirty = true
	m.Logger.Info("courier contract posted", "contract_id", c.ID, "town_id", issuer.ID, "destination_town_id", dest.ID, "resource", resource, "quantity", in.Quantity, "reward", in.Reward)
	return c.Clone(), nil
}

func (m *Market) find(id string) (*contract.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, town.NotFound(town.CodeContractNotFound, "contract %s not found", id)
	}
	return c, nil
}

// Get returns a copy with the state presented at the current tick.
func (m *Market) Get(id string) (*contract.Contract, error) {
	c, err := m.find(id)
	if err != nil {
		return nil, err
	}
	return m.present(c), nil
}

func (m *Market) present(c *contract.Contract) *contract.Contract {
	cp := c.Clone()
	cp.State = c.StateAt(m.now())
	return cp
}

func (m *Market) Bid(contractID, bidder string, amount int) (*contract.Contract, error) {
	c, err := m.find(contractID)
	if err != nil {
		return nil, err
	}
	if err := c.Bid(bidder, amount, m.now()); err != nil {
		return nil, err
	}
	m.dirty = true
	return m.present(c), nil
}

func (m *Market) Accept(contractID, actor string) (*contract.Contract, error) {
	c, err := m.find(contractID)
	if err != nil {
		return nil, err
	}
	if err := c.Accept(actor, m.now()); err != nil {
		return nil, err
	}
	m.dirty = true
	m.Logger.Info("contract accepted", "contract_id", c.ID, "accepted_by", c.AcceptedBy)
	return m.present(c), nil
}

// Award closes a sale for a bidder whose bid covers the asking price.
func (m *Market) Award(contractID, buyer string) (*contract.Contract, error) {
	c, err := m.find(contractID)
	if err != nil {
		return nil, err
	}
	if err := c.Award(buyer, m.now()); err != nil {
		return nil, err
	}
	m.dirty = true
	m.Logger.Info("contract awarded", "contract_id", c.ID, "accepted_by", c.AcceptedBy)
	return m.present(c), nil
}

// Complete settles an accepted contract. A sale charges the buyer from their
// personal storage at the issuing town and leaves the goods on that town's
// payment board; a courier delivery credits the goods to the destination and
// leaves the reward on the destination's board.
func (m *Market) Complete(contractID, actor string) (*contract.Contract, []contract.Payment, error) {
	c, err := m.find(contractID)
	if err != nil {
		return nil, nil, err
	}
	now := m.now()
	next := c.Clone()
	if err := next.Complete(actor, now); err != nil {
		return nil, nil, err
	}

	var paid []contract.Payment
	switch c.Kind {
	case contract.KindSell:
		issuer, err := m.Towns.Get(c.IssuerTownID)
		if err != nil {
			return nil, nil, err
		}
		amount := next.SettlementAmount()
		if amount > 0 {
			if have := issuer.Stored(next.AcceptedBy, m.Currency); have < amount {
				return nil, nil, town.Validation(town.CodeInsufficientResources, "%s has %d %s stored at %s, owes %d", next.AcceptedBy, have, m.Currency, issuer.Name, amount)
			}
			if err := m.Towns.AddResources(issuer, m.Currency, amount); err != nil {
				return nil, nil, err
			}
			if err := m.Towns.WithdrawPersonal(issuer, next.AcceptedBy, m.Currency, amount); err != nil {
				return nil, nil, err
			}
		}
		paid = append(paid, m.addPayment(issuer.ID, next.AcceptedBy, c.ResourceID, c.Quantity, c.ID, now))
	case contract.KindCourier:
		dest, err := m.Towns.Get(c.DestinationTownID)
		if err != nil {
			return nil, nil, err
		}
		if err := m.Towns.AddResources(dest, c.ResourceID, c.Quantity); err != nil {
			return nil, nil, err
		}
		if c.Reward > 0 {
			paid = append(paid, m.addPayment(dest.ID, next.AcceptedBy, m.Currency, c.Reward, c.ID, now))
		}
	default:
		return nil, nil, town.Internal("contract %s has unknown kind %q", c.ID, c.Kind)
	}

	*c = *next
	m.dirty = true
	m.Logger.Info("contract completed", "contract_id", c.ID, "kind", string(c.Kind), "accepted_by", c.AcceptedBy)
	return m.present(c), paid, nil
}

// Reclaim returns the escrow of an expired contract to its issuer.
func (m *Market) Reclaim(contractID string) (*contract.Contract, error) {
	c, err := m.find(contractID)
	if err != nil {
		return nil, err
	}
	next := c.Clone()
	if err := next.Reclaim(m.now()); err != nil {
		return nil, err
	}
	issuer, err := m.Towns.Get(c.IssuerTownID)
	if err != nil {
		return nil, err
	}
	if err := m.Towns.AddResources(issuer, c.ResourceID, c.Quantity); err != nil {
		return nil, err
	}
	if c.Kind == contract.KindCourier && c.Reward > 0 {
		if err := m.Towns.AddResources(issuer, m.Currency, c.Reward); err != nil {
			return nil, err
		}
	}
	*c = *next
	m.dirty = true
	m.Logger.Info("contract escrow reclaimed", "contract_id", c.ID, "town_id", issuer.ID)
	return m.present(c), nil
}

func (m *Market) list(kind contract.Kind) []*contract.Contract {
	out := make([]*contract.Contract, 0)
	for _, c := range m.contracts {
		if c.Kind == kind {
			out = append(out, m.present(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedTick != out[j].CreatedTick {
			return out[i].CreatedTick < out[j].CreatedTick
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Market) ListSell() []*contract.Contract {
	return m.list(contract.KindSell)
}

func (m *Market) ListCourier() []*contract.Contract {
	return m.list(contract.KindCourier)
}

func (m *Market) addPayment(townID, recipient, resource string, amount int, contractID string, now uint64) contract.Payment {
	p := &contract.Payment{
		ID:          m.NewID(),
		Partition:   m.partition(),
		TownID:      townID,
		Recipient:   recipient,
		ResourceID:  resource,
		Amount:      amount,
		ContractID:  contractID,
		CreatedTick: now,
	}
	m.payments[p.ID] = p
	return *p
}

// Payments lists the payment board of a town, oldest first.
func (m *Market) Payments(townID string) []contract.Payment {
	out := make([]contract.Payment, 0)
	for _, p := range m.payments {
		if p.TownID == townID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedTick != out[j].CreatedTick {
			return out[i].CreatedTick < out[j].CreatedTick
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ClaimPayment moves a payment into the recipient's personal storage at the
// town holding it.
func (m *Market) ClaimPayment(townID, paymentID, player string) (contract.Payment, error) {
	p, ok := m.payments[paymentID]
	if !ok || p.TownID != townID {
		return contract.Payment{}, town.NotFound(town.CodePaymentNotFound, "payment %s not found at town %s", paymentID, townID)
	}
	if p.Recipient != strings.TrimSpace(player) {
		return contract.Payment{}, town.State(town.CodeNotAuthorized, "payment %s belongs to %s", paymentID, p.Recipient)
	}
	if p.Claimed {
		return contract.Payment{}, town.State(town.CodeCompleted, "payment %s was already claimed", paymentID)
	}
	t, err := m.Towns.Get(townID)
	if err != nil {
		return contract.Payment{}, err
	}
	if err := m.Towns.DepositPersonal(t, p.Recipient, p.ResourceID, p.Amount); err != nil {
		return contract.Payment{}, err
	}
	p.Claimed = true
	m.dirty = true
	return *p, nil
}

func (m *Market) Load(ctx context.Context, repo ports.ContractRepository) error {
	contracts, err := repo.ListContracts(ctx, m.partition())
	if err != nil {
		return town.Internal("load contracts: %v", err)
	}
	payments, err := repo.ListPayments(ctx, m.partition())
	if err != nil {
		return town.Internal("load payments: %v", err)
	}
	m.contracts = make(map[string]*contract.Contract, len(contracts))
	for _, c := range contracts {
		if err := validateRecord(c); err != nil {
			return err
		}
		if c.Bids == nil {
			c.Bids = map[string]int{}
		}
		m.contracts[c.ID] = c
	}
	m.payments = make(map[string]*contract.Payment, len(payments))
	for i := range payments {
		p := payments[i]
		if p.ID == "" || p.Amount < 0 {
			return town.Internal("corrupt payment record %q", p.ID)
		}
		m.payments[p.ID] = &p
	}
	m.dirty = false
	return nil
}

func validateRecord(c *contract.Contract) error {
	switch {
	case c == nil || c.ID == "":
		return town.Internal("contract record without id")
	case contract.NormalizeKind(string(c.Kind)) == "":
		return town.Internal("contract %s has unknown kind %q", c.ID, c.Kind)
	case c.Quantity <= 0 || c.Price < 0 || c.Reward < 0 || c.CurrentBid < 0:
		return town.Internal("contract %s has negative amounts", c.ID)
	}
	return nil
}

func (m *Market) Save(ctx context.Context, repo ports.ContractRepository) error {
	contracts := make([]*contract.Contract, 0, len(m.contracts))
	for _, c := range m.contracts {
		contracts = append(contracts, c.Clone())
	}
	sort.Slice(contracts, func(i, j int) bool { return contracts[i].ID < contracts[j].ID })
	if err := repo.SaveContracts(ctx, m.partition(), contracts); err != nil {
		return fmt.Errorf("save contracts: %w", err)
	}
	payments := make([]contract.Payment, 0, len(m.payments))
	for _, p := range m.payments {
		payments = append(payments, *p)
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].ID < payments[j].ID })
	if err := repo.SavePayments(ctx, m.partition(), payments); err != nil {
		return fmt.Errorf("save payments: %w", err)
	}
	m.dirty = false
	return nil
}
