package townsvc

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"townsim/internal/app/registry"
	"townsim/internal/domain/boundary"
	"townsim/internal/domain/business"
	"townsim/internal/domain/town"
	"townsim/internal/domain/validation"
)

type Config struct {
	MinPopForTourists         int
	PopulationPerTourist      int
	MaxPopBasedTourists       int
	MaxTouristsPerTown        int
	DefaultStartingPopulation int
}

func DefaultConfig() Config {
	return Config{
		MinPopForTourists:         5,
		PopulationPerTourist:      10,
		MaxPopBasedTourists:       20,
		MaxTouristsPerTown:        10,
		DefaultStartingPopulation: 0,
	}
}

// Service is the only writer of Town state for one partition.
type Service struct {
	Registry  *registry.Registry
	Validator validation.Validator
	Config    Config
	Logger    *slog.Logger
	Now       func() time.Time
	NewID     func() string

	// last logged canSpawnTourists value per town id; never consulted for
	// the returned value.
	spawnLog sync.Map
}

func NewService(reg *registry.Registry, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Registry: reg,
		Config:   cfg,
		Logger:   logger.With("partition", reg.Partition()),
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return uuid.NewString()
	}
	return s.NewID()
}

func (s *Service) Get(id string) (*town.Town, error) {
	return s.Registry.Get(id)
}

func (s *Service) CreateTown(name string, pos town.Position, initialResources map[string]int) (*town.Town, error) {
	if err := s.Validator.Name(name); err != nil {
		return nil, err
	}
	if err := s.Validator.Position(pos); err != nil {
		return nil, err
	}
	if initialResources != nil {
		if err := s.Validator.InitialResources(initialResources); err != nil {
			return nil, err
		}
	}
	if err := s.Registry.CheckPlacement(pos); err != nil {
		return nil, err
	}

	t := town.New(s.newID(), s.Registry.Partition(), strings.TrimSpace(name), pos, s.Config.DefaultStartingPopulation, s.now())
	for kind, amount := range initialResources {
		if err := t.AddResource(kind, amount); err != nil {
			return nil, err
		}
	}
	if err := s.Registry.Add(t); err != nil {
		return nil, err
	}
	s.Logger.Info("town created", "town_id", t.ID, "name", t.Name, "x", pos.X, "y", pos.Y, "z", pos.Z)
	return t, nil
}

func (s *Service) RemoveTown(id string) (*town.Town, error) {
	t, err := s.Registry.Remove(id)
	if err != nil {
		return nil, err
	}
	s.spawnLog.Delete(id)
	s.Logger.Info("town removed", "town_id", id, "name", t.Name)
	return t, nil
}

// CanSpawnTourists is always computed fresh; the side table only decides
// whether the result is worth logging.
func (s *Service) CanSpawnTourists(t *town.Town) bool {
	can := t.TouristSpawningEnabled && t.Population >= s.Config.MinPopForTourists
	prev, loaded := s.spawnLog.Swap(t.ID, can)
	if !loaded || prev.(bool) != can {
		s.Logger.Info("tourist spawning eligibility changed",
			"town_id", t.ID,
			"can_spawn", can,
			"enabled", t.TouristSpawningEnabled,
			"population", t.Population,
			"min_population", s.Config.MinPopForTourists,
		)
	}
	return can
}

func (s *Service) CalculateMaxTourists(t *town.Town) int {
	popBased := 0
	if s.Config.PopulationPerTourist > 0 {
		popBased = t.Population / s.Config.PopulationPerTourist
	}
	return min(min(popBased, s.Config.MaxPopBasedTourists), s.Config.MaxTouristsPerTown)
}

// CanSpawnMore is the looser general gate derived from population alone.
func (s *Service) CanSpawnMore(t *town.Town) bool {
	return t.TouristCount < business.MaxTourists(t.Population)
}

func (s *Service) AddTourist(t *town.Town) error {
	if !t.TouristSpawningEnabled {
		return town.State(town.CodeSpawningDisabled, "tourist spawning is disabled in %s", t.Name)
	}
	limit := s.CalculateMaxTourists(t)
	if t.TouristCount >= limit {
		return town.State(town.CodeTouristLimitReached, "%s already hosts %d of %d tourists", t.Name, t.TouristCount, limit)
	}
	t.TouristCount++
	s.Registry.MarkDirty()
	return nil
}

func (s *Service) RemoveTourist(t *town.Town) error {
	if t.TouristCount <= 0 {
		return town.State(town.CodeNoTourists, "%s has no tourists", t.Name)
	}
	t.TouristCount--
	s.Registry.MarkDirty()
	return nil
}

func (s *Service) AddResources(t *town.Town, kind string, amount int) error {
	if amount <= 0 {
		return town.Validation(town.CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	if err := s.Validator.ResourceDelta(t.Resource(kind), kind, amount); err != nil {
		return err
	}
	if err := t.AddResource(kind, amount); err != nil {
		return err
	}
	s.Registry.MarkDirty()
	return nil
}

func (s *Service) RemoveResources(t *town.Town, kind string, amount int) error {
	if amount <= 0 {
		return town.Validation(town.CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	if err := s.Validator.ResourceDelta(t.Resource(kind), kind, -amount); err != nil {
		return err
	}
	if err := t.RemoveResource(kind, amount); err != nil {
		return err
	}
	s.Registry.MarkDirty()
	return nil
}

// TradeResource moves amount of kind from one town to another. Both sides are
// validated before either is changed.
func (s *Service) TradeResource(from, to *town.Town, kind string, amount int) error {
	if amount <= 0 {
		return town.Validation(town.CodeInvalidAmount, "amount must be positive, got %d", amount)
	}
	if from.ID == to.ID {
		return town.Validation(town.CodeSelfDeal, "cannot trade with the same town")
	}
	if err := s.Validator.ResourceDelta(from.Resource(kind), kind, -amount); err != nil {
		return err
	}
	if err := s.Validator.ResourceDelta(to.Resource(kind), kind, amount); err != nil {
		return err
	}
	if err := from.RemoveResource(kind, amount); err != nil {
		return err
	}
	if err := to.AddResource(kind, amount); err != nil {
		return err
	}
	s.Registry.MarkDirty()
	return nil
}

type VisitOutcome struct {
	TownID        string                  `json:"town_id"`
	VisitorID     string                  `json:"visitor_id,omitempty"`
	TotalVisitors int64                   `json:"total_visitors"`
	Growth        int                     `json:"growth"`
	Population    int                     `json:"population"`
	Blocked       *boundary.ConflictError `json:"-"`
}

// ProcessVisitor counts one visitor and converts accumulated visitors into
// population growth when the territory can expand.
func (s *Service) ProcessVisitor(t *town.Town, visitorID, originTownID string) (VisitOutcome, error) {
	if originTownID == t.ID {
		originTownID = ""
	}
	t.RecordVisitor(originTownID)
	s.Registry.MarkDirty()
	out, err := s.evaluateGrowth(t)
	out.VisitorID = visitorID
	return out, err
}

// RecordTouristVisit books a group of touristCount tourists arriving from
// origin, credits the trip reward to the destination in rewardKind and then
// evaluates growth.
func (s *Service) RecordTouristVisit(dest, origin *town.Town, touristCount int, rewardKind string) (business.Visit, VisitOutcome, error) {
	if touristCount <= 0 {
		return business.Visit{}, VisitOutcome{}, town.Validation(town.CodeInvalidAmount, "tourist count must be positive, got %d", touristCount)
	}
	visit := business.ProcessTouristVisit(dest, origin.ID, origin.Position, touristCount)
	s.Registry.MarkDirty()
	if visit.Reward > 0 && rewardKind != "" {
		if err := s.AddResources(dest, rewardKind, visit.Reward); err != nil {
			s.Logger.Warn("visit reward not credited", "town_id", dest.ID, "reward", visit.Reward, "error", err)
		}
	}
	out, err := s.evaluateGrowth(dest)
	return visit, out, err
}

func (s *Service) evaluateGrowth(t *town.Town) (VisitOutcome, error) {
	out := VisitOutcome{TownID: t.ID, TotalVisitors: t.TotalVisitors, Population: t.Population}
	growth := business.PopulationGrowth(t.Population, t.PendingVisitors)
	if growth <= 0 {
		return out, nil
	}
	proposed := t.Population + growth
	if err := s.Registry.CheckExpansion(t, proposed); err != nil {
		var conflict *boundary.ConflictError
		if errors.As(err, &conflict) {
			out.Blocked = conflict
			s.Logger.Info("population growth blocked by boundary",
				"town_id", t.ID, "proposed", proposed, "blocking_town_id", conflict.TownID, "distance", conflict.Distance)
			return out, nil
		}
		return out, err
	}
	t.Population = proposed
	t.PendingVisitors -= growth * business.VisitorsPerGrowth
	if t.PendingVisitors < 0 {
		t.PendingVisitors = 0
	}
	s.Registry.MarkDirty()
	out.Growth = growth
	out.Population = t.Population
	s.Logger.Info("town grew", "town_id", t.ID, "growth", growth, "population", t.Population)
	return out, nil
}

// SetPopulation sets population directly, checking expansion when growing.
func (s *Service) SetPopulation(t *town.Town, population int) error {
	if population < 0 {
		return town.Validation(town.CodeInvalidAmount, "population must not be negative, got %d", population)
	}
	if err := s.Registry.CheckExpansion(t, population); err != nil {
		return err
	}
	if population == t.Population {
		return nil
	}
	t.Population = population
	s.Registry.MarkDirty()
	return nil
}

// ExpandPopulation grows the town by n, failing with BOUNDARY_CONFLICT when
// the larger territory would overlap a neighbour.
func (s *Service) ExpandPopulation(t *town.Town, n int) error {
	if n <= 0 {
		return town.Validation(town.CodeInvalidAmount, "growth must be positive, got %d", n)
	}
	if t.Population > town.MaxResourceCount-n {
		return town.Validation(town.CodeResourceOverflow, "population %d cannot grow by %d", t.Population, n)
	}
	if err := s.SetPopulation(t, t.Population+n); err != nil {
		return err
	}
	s.Logger.Info("town expanded", "town_id", t.ID, "growth", n, "population", t.Population)
	return nil
}

func (s *Service) UpdateTownSettings(t *town.Town, settings town.Settings) error {
	if err := s.Validator.Settings(settings); err != nil {
		return err
	}
	changed := false
	if settings.Name != nil {
		if name := strings.TrimSpace(*settings.Name); name != t.Name {
			t.Name = name
			changed = true
		}
	}
	if settings.SearchRadius != nil && *settings.SearchRadius != t.SearchRadius {
		t.SearchRadius = *settings.SearchRadius
		changed = true
	}
	if settings.TouristSpawningEnabled != nil && *settings.TouristSpawningEnabled != t.TouristSpawningEnabled {
		t.TouristSpawningEnabled = *settings.TouristSpawningEnabled
		changed = true
	}
	if changed {
		s.Registry.MarkDirty()
	}
	return nil
}

func (s *Service) DepositPersonal(t *town.Town, player, kind string, amount int) error {
	if err := t.Deposit(player, kind, amount); err != nil {
		return err
	}
	s.Registry.MarkDirty()
	return nil
}

func (s *Service) WithdrawPersonal(t *town.Town, player, kind string, amount int) error {
	if err := t.Withdraw(player, kind, amount); err != nil {
		return err
	}
	s.Registry.MarkDirty()
	return nil
}

func (s *Service) AddPlatform(t *town.Town, name string, start, end town.Position) (town.Platform, error) {
	if err := s.Validator.PlatformName(name); err != nil {
		return town.Platform{}, err
	}
	if err := s.Validator.Position(start); err != nil {
		return town.Platform{}, err
	}
	if err := s.Validator.Position(end); err != nil {
		return town.Platform{}, err
	}
	p := town.Platform{ID: s.newID(), Name: strings.TrimSpace(name), Start: start, End: end, Enabled: true}
	t.AddPlatform(p)
	s.Registry.MarkDirty()
	return p, nil
}

func (s *Service) RemovePlatform(t *town.Town, platformID string) error {
	if err := t.RemovePlatform(platformID); err != nil {
		return err
	}
	s.Registry.MarkDirty()
	return nil
}

func (s *Service) SetPlatformEnabled(t *town.Town, platformID string, enabled bool) error {
	if err := t.SetPlatformEnabled(platformID, enabled); err != nil {
		return err
	}
	s.Registry.MarkDirty()
	return nil
}
