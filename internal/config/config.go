// Package config loads server settings from YAML with TOWNSIM_* environment
// overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"townsim/internal/app/host"
	"townsim/internal/app/market"
	"townsim/internal/app/townsvc"
	"townsim/internal/domain/boundary"
	"townsim/internal/domain/tourist"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSnapshot = "snapshot"
)

type Config struct {
	Towns     TownsConfig     `yaml:"towns"`
	Tourists  TouristsConfig  `yaml:"tourists"`
	Market    MarketConfig    `yaml:"market"`
	Host      HostConfig      `yaml:"host"`
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	WS        AddrConfig      `yaml:"ws"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
}

type TownsConfig struct {
	MinPopForTourists         int `yaml:"min_pop_for_tourists"`
	PopulationPerTourist      int `yaml:"population_per_tourist"`
	MaxPopBasedTourists       int `yaml:"max_pop_based_tourists"`
	MaxTouristsPerTown        int `yaml:"max_tourists_per_town"`
	DefaultStartingPopulation int `yaml:"default_starting_population"`
	MinDisplayRadius          int `yaml:"min_display_radius"`
}

type TouristsConfig struct {
	ExpiryMinutes     int  `yaml:"expiry_minutes"`
	EnableExpiry      bool `yaml:"enable_expiry"`
	NotifyOnDeparture bool `yaml:"notify_on_departure"`
	TicksPerMinute    int  `yaml:"ticks_per_minute"`
}

type MarketConfig struct {
	DefaultContractTicks uint64 `yaml:"default_contract_ticks"`
	Currency             string `yaml:"currency"`
}

type HostConfig struct {
	TickMS                  int      `yaml:"tick_ms"`
	AutosaveEveryTicks      uint64   `yaml:"autosave_every_ticks"`
	BoundaryCheckEveryTicks uint64   `yaml:"boundary_check_every_ticks"`
	QueueSize               int      `yaml:"queue_size"`
	Partitions              []string `yaml:"partitions"`
}

type StorageConfig struct {
	Backend        string `yaml:"backend"`
	DSN            string `yaml:"dsn"`
	MigrationsDir  string `yaml:"migrations_dir"`
	SnapshotDir    string `yaml:"snapshot_dir"`
	EventIndexPath string `yaml:"event_index_path"`
	MaxOpenConns   int    `yaml:"max_open_conns"`
}

type AddrConfig struct {
	Addr string `yaml:"addr"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type RateLimitConfig struct {
	CommandsPerSecond float64 `yaml:"commands_per_second"`
	Burst             int     `yaml:"burst"`
}

func Default() Config {
	towns := townsvc.DefaultConfig()
	return Config{
		Towns: TownsConfig{
			MinPopForTourists:         towns.MinPopForTourists,
			PopulationPerTourist:      towns.PopulationPerTourist,
			MaxPopBasedTourists:       towns.MaxPopBasedTourists,
			MaxTouristsPerTown:        towns.MaxTouristsPerTown,
			DefaultStartingPopulation: towns.DefaultStartingPopulation,
			MinDisplayRadius:          boundary.DefaultMinDisplayRadius,
		},
		Tourists: TouristsConfig{
			ExpiryMinutes:     120,
			EnableExpiry:      true,
			NotifyOnDeparture: true,
			TicksPerMinute:    tourist.DefaultTicksPerMinute,
		},
		Market: MarketConfig{
			DefaultContractTicks: market.DefaultContractTicks,
			Currency:             market.DefaultCurrency,
		},
		Host: HostConfig{
			TickMS:                  50,
			AutosaveEveryTicks:      6000,
			BoundaryCheckEveryTicks: 200,
			QueueSize:               1024,
			Partitions:              []string{"overworld"},
		},
		Storage: StorageConfig{
			Backend:       BackendMemory,
			MigrationsDir: "./db/migrations",
			SnapshotDir:   "./data/snapshots",
			MaxOpenConns:  16,
		},
		HTTP:      HTTPConfig{Addr: ":8080"},
		WS:        AddrConfig{Addr: ":8081"},
		Log:       LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{CommandsPerSecond: 5, Burst: 10},
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	c.Storage.Backend = stringEnv("TOWNSIM_STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.DSN = stringEnv("TOWNSIM_DB_DSN", c.Storage.DSN)
	c.Storage.MigrationsDir = stringEnv("TOWNSIM_MIGRATIONS_DIR", c.Storage.MigrationsDir)
	c.Storage.SnapshotDir = stringEnv("TOWNSIM_SNAPSHOT_DIR", c.Storage.SnapshotDir)
	c.Storage.EventIndexPath = stringEnv("TOWNSIM_EVENT_INDEX", c.Storage.EventIndexPath)
	c.HTTP.Addr = stringEnv("TOWNSIM_HTTP_ADDR", c.HTTP.Addr)
	c.WS.Addr = stringEnv("TOWNSIM_WS_ADDR", c.WS.Addr)
	c.Log.Level = stringEnv("TOWNSIM_LOG_LEVEL", c.Log.Level)
	c.Host.TickMS = intEnv("TOWNSIM_TICK_MS", c.Host.TickMS)
	c.Towns.MinPopForTourists = intEnv("TOWNSIM_MIN_POP_FOR_TOURISTS", c.Towns.MinPopForTourists)
	c.Towns.PopulationPerTourist = intEnv("TOWNSIM_POPULATION_PER_TOURIST", c.Towns.PopulationPerTourist)
	c.Towns.MaxTouristsPerTown = intEnv("TOWNSIM_MAX_TOURISTS_PER_TOWN", c.Towns.MaxTouristsPerTown)
	c.Towns.DefaultStartingPopulation = intEnv("TOWNSIM_DEFAULT_STARTING_POPULATION", c.Towns.DefaultStartingPopulation)
	c.Tourists.ExpiryMinutes = intEnv("TOWNSIM_TOURIST_EXPIRY_MINUTES", c.Tourists.ExpiryMinutes)
	c.Host.Partitions = listEnv("TOWNSIM_PARTITIONS", c.Host.Partitions)
	c.HTTP.AllowedOrigins = listEnv("TOWNSIM_HTTP_ALLOWED_ORIGINS", c.HTTP.AllowedOrigins)
}

func (c Config) Validate() error {
	if c.Towns.PopulationPerTourist <= 0 {
		return fmt.Errorf("towns.population_per_tourist must be positive, got %d", c.Towns.PopulationPerTourist)
	}
	if c.Towns.MinPopForTourists < 0 || c.Towns.MaxPopBasedTourists < 0 || c.Towns.MaxTouristsPerTown < 0 {
		return fmt.Errorf("towns tourist limits must not be negative")
	}
	if c.Towns.DefaultStartingPopulation < 0 || c.Towns.MinDisplayRadius < 0 {
		return fmt.Errorf("towns radii must not be negative")
	}
	if c.Tourists.TicksPerMinute <= 0 {
		return fmt.Errorf("tourists.ticks_per_minute must be positive, got %d", c.Tourists.TicksPerMinute)
	}
	if c.Tourists.EnableExpiry && c.Tourists.ExpiryMinutes <= 0 {
		return fmt.Errorf("tourists.expiry_minutes must be positive when expiry is enabled")
	}
	if c.Host.TickMS <= 0 {
		return fmt.Errorf("host.tick_ms must be positive, got %d", c.Host.TickMS)
	}
	if c.Market.DefaultContractTicks == 0 {
		return fmt.Errorf("market.default_contract_ticks must be positive")
	}
	if strings.TrimSpace(c.Market.Currency) == "" {
		return fmt.Errorf("market.currency is required")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	case BackendSnapshot:
		if strings.TrimSpace(c.Storage.SnapshotDir) == "" {
			return fmt.Errorf("storage.snapshot_dir is required for the snapshot backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.MaxOpenConns < 0 {
		return fmt.Errorf("storage.max_open_conns must not be negative")
	}
	if c.RateLimit.CommandsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// HostSettings maps the file settings onto the simulation host.
func (c Config) HostSettings() host.Config {
	cfg := host.DefaultConfig()
	cfg.Towns = townsvc.Config{
		MinPopForTourists:         c.Towns.MinPopForTourists,
		PopulationPerTourist:      c.Towns.PopulationPerTourist,
		MaxPopBasedTourists:       c.Towns.MaxPopBasedTourists,
		MaxTouristsPerTown:        c.Towns.MaxTouristsPerTown,
		DefaultStartingPopulation: c.Towns.DefaultStartingPopulation,
	}
	cfg.Tourists = tourist.Config{
		ExpiryMinutes:     c.Tourists.ExpiryMinutes,
		EnableExpiry:      c.Tourists.EnableExpiry,
		NotifyOnDeparture: c.Tourists.NotifyOnDeparture,
		TicksPerMinute:    c.Tourists.TicksPerMinute,
	}
	cfg.MinDisplayRadius = c.Towns.MinDisplayRadius
	cfg.Currency = c.Market.Currency
	cfg.DefaultContractTicks = c.Market.DefaultContractTicks
	cfg.AutosaveEvery = c.Host.AutosaveEveryTicks
	cfg.BoundaryCheckEvery = c.Host.BoundaryCheckEveryTicks
	if c.Host.QueueSize > 0 {
		cfg.QueueSize = c.Host.QueueSize
	}
	return cfg
}

func (c Config) TickInterval() time.Duration {
	return time.Duration(c.Host.TickMS) * time.Millisecond
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

func intEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// listEnv splits a comma separated variable, dropping blank entries.
func listEnv(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stringEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
