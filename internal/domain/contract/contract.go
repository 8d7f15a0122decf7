package contract

import (
	"sort"
	"strings"

	"townsim/internal/domain/town"
)

type Kind string

const (
	KindSell    Kind = "SELL"
	KindCourier Kind = "COURIER"
)

func NormalizeKind(k string) Kind {
	switch Kind(strings.TrimSpace(strings.ToUpper(k))) {
	case KindSell:
		return KindSell
	case KindCourier:
		return KindCourier
	default:
		return ""
	}
}

type State string

const (
	StateOpen      State = "OPEN"
	StateAccepted  State = "ACCEPTED"
	StateCompleted State = "COMPLETED"
	StateExpired   State = "EXPIRED"
)

// Contract is a trade posting issued by a town. Expiry is never stored as a
// state; it is derived from ExpiryTick whenever the contract is read.
type Contract struct {
	ID           string         `json:"id"`
	Kind         Kind           `json:"kind"`
	Partition    string         `json:"partition"`
	IssuerTownID string         `json:"issuer_town_id"`
	ResourceID   string         `json:"resource_id"`
	Quantity     int            `json:"quantity"`
	CreatedTick  uint64         `json:"created_tick"`
	ExpiryTick   uint64         `json:"expiry_tick"`
	Bids         map[string]int `json:"bids"`
	State        State          `json:"state"`
	AcceptedBy   string         `json:"accepted_by,omitempty"`
	Reclaimed    bool           `json:"reclaimed,omitempty"`

	// Sell
	Price         int    `json:"price,omitempty"`
	CurrentBid    int    `json:"current_bid,omitempty"`
	HighestBidder string `json:"highest_bidder,omitempty"`

	// Courier
	DestinationTownID string `json:"destination_town_id,omitempty"`
	Reward            int    `json:"reward,omitempty"`
}

func (c *Contract) IsExpired(now uint64) bool {
	return c.State != StateCompleted && now > c.ExpiryTick
}

func (c *Contract) IsCompleted() bool {
	return c.State == StateCompleted
}

// StateAt is the presented state at tick now.
func (c *Contract) StateAt(now uint64) State {
	if c.IsExpired(now) {
		return StateExpired
	}
	return c.State
}

func (c *Contract) RemainingTicks(now uint64) uint64 {
	if now >= c.ExpiryTick {
		return 0
	}
	return c.ExpiryTick - now
}

func (c *Contract) ensureLive(now uint64) error {
	if c.IsCompleted() {
		return town.State(town.CodeCompleted, "contract %s is already completed", c.ID)
	}
	if c.IsExpired(now) {
		return town.State(town.CodeExpired, "contract %s has expired", c.ID)
	}
	return nil
}

// Bid records bidder's offer; a later bid from the same bidder replaces the
// earlier one. CurrentBid only ever increases.
func (c *Contract) Bid(bidder string, amount int, now uint64) error {
	if err := c.ensureLive(now); err != nil {
		return err
	}
	if c.State != StateOpen {
		return town.State(town.CodeNotOpen, "contract %s is no longer open", c.ID)
	}
	bidder = strings.TrimSpace(bidder)
	if bidder == "" {
		return town.Validation(town.CodeInvalidAmount, "bidder is required")
	}
	if amount < 0 {
		return town.Validation(town.CodeInvalidAmount, "bid must not be negative, got %d", amount)
	}
	if c.Bids == nil {
		c.Bids = map[string]int{}
	}
	c.Bids[bidder] = amount
	if c.Kind == KindSell && amount > c.CurrentBid {
		c.CurrentBid = amount
		c.HighestBidder = bidder
	}
	return nil
}

// Accept moves an open contract to Accepted on behalf of actor. A courier
// claims the job; a buyer takes a sale for themselves, which needs either
// their own bid or a fixed price.
func (c *Contract) Accept(actor string, now uint64) error {
	if err := c.ensureLive(now); err != nil {
		return err
	}
	if c.State != StateOpen {
		return town.State(town.CodeNotOpen, "contract %s is no longer open", c.ID)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return town.Validation(town.CodeNotAuthorized, "acting player is required")
	}
	if c.Kind == KindSell {
		if _, ok := c.Bids[actor]; !ok && c.Price <= 0 {
			return town.State(town.CodeNotAuthorized, "%s has not bid on contract %s", actor, c.ID)
		}
	}
	c.AcceptedBy = actor
	c.State = StateAccepted
	return nil
}

// Award closes a sale in favour of a bidder other than the caller. Only a
// bid that covers the price can be awarded, since the bidder pays what they
// offered. An empty buyer awards the highest bidder.
func (c *Contract) Award(buyer string, now uint64) error {
	if err := c.ensureLive(now); err != nil {
		return err
	}
	if c.State != StateOpen {
		return town.State(town.CodeNotOpen, "contract %s is no longer open", c.ID)
	}
	if c.Kind != KindSell {
		return town.State(town.CodeNotAuthorized, "courier contract %s is accepted by the courier", c.ID)
	}
	buyer = strings.TrimSpace(buyer)
	if buyer == "" {
		buyer = c.HighestBidder
	}
	if buyer == "" {
		return town.State(town.CodeNotOpen, "contract %s has no bids to award", c.ID)
	}
	bid, ok := c.Bids[buyer]
	if !ok {
		return town.State(town.CodeNotAuthorized, "%s has not bid on contract %s", buyer, c.ID)
	}
	if bid < c.Price {
		return town.State(town.CodeNotAuthorized, "%s bid %d, below the asking price %d", buyer, bid, c.Price)
	}
	c.AcceptedBy = buyer
	c.State = StateAccepted
	return nil
}

// SettlementAmount is what the accepted sell buyer owes.
func (c *Contract) SettlementAmount() int {
	if c.Kind != KindSell {
		return 0
	}
	if bid, ok := c.Bids[c.AcceptedBy]; ok && bid >= c.Price {
		return bid
	}
	return c.Price
}

func (c *Contract) Complete(actor string, now uint64) error {
	if err := c.ensureLive(now); err != nil {
		return err
	}
	if c.State != StateAccepted {
		return town.State(town.CodeNotAccepted, "contract %s has not been accepted", c.ID)
	}
	if strings.TrimSpace(actor) != c.AcceptedBy {
		return town.State(town.CodeNotAuthorized, "only %s can complete contract %s", c.AcceptedBy, c.ID)
	}
	c.State = StateCompleted
	return nil
}

// Reclaim marks an expired contract's escrow as returned to the issuer.
func (c *Contract) Reclaim(now uint64) error {
	if c.IsCompleted() {
		return town.State(town.CodeCompleted, "contract %s is already completed", c.ID)
	}
	if !c.IsExpired(now) {
		return town.State(town.CodeNotOpen, "contract %s has not expired yet", c.ID)
	}
	if c.Reclaimed {
		return town.State(town.CodeNotOpen, "contract %s escrow was already reclaimed", c.ID)
	}
	c.Reclaimed = true
	return nil
}

// SortedBids returns bids ordered by amount, highest first, ties by bidder.
func (c *Contract) SortedBids() []Bid {
	out := make([]Bid, 0, len(c.Bids))
	for bidder, amount := range c.Bids {
		out = append(out, Bid{Bidder: bidder, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Bidder < out[j].Bidder
	})
	return out
}

type Bid struct {
	Bidder string `json:"bidder"`
	Amount int    `json:"amount"`
}

func (c *Contract) Clone() *Contract {
	cp := *c
	cp.Bids = make(map[string]int, len(c.Bids))
	for k, v := range c.Bids {
		cp.Bids[k] = v
	}
	return &cp
}

// Payment is a claimable entry on a town's payment board.
type Payment struct {
	ID          string `json:"id"`
	Partition   string `json:"partition"`
	TownID      string `json:"town_id"`
	Recipient   string `json:"recipient"`
	ResourceID  string `json:"resource_id"`
	Amount      int    `json:"amount"`
	ContractID  string `json:"contract_id"`
	CreatedTick uint64 `json:"created_tick"`
	Claimed     bool   `json:"claimed"`
}
