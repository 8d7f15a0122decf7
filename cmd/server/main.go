package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	httpadapter "townsim/internal/adapter/http"
	metricsinmem "townsim/internal/adapter/metrics/inmemory"
	gormrepo "townsim/internal/adapter/repo/gorm"
	"townsim/internal/adapter/repo/memory"
	sqliterepo "townsim/internal/adapter/repo/sqlite"
	"townsim/internal/adapter/snapshot"
	"townsim/internal/adapter/ws"
	"townsim/internal/app/auxcache"
	"townsim/internal/app/history"
	"townsim/internal/app/host"
	"townsim/internal/config"

	"github.com/cloudwego/hertz/pkg/app/server"
)

func main() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("build stores: %v", err)
	}
	defer closeStores()

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	kpiRecorder := metricsinmem.NewRecorder()
	sim := host.NewSimulation(cfg.HostSettings(), stores, hub, logger)
	sim.Metrics = kpiRecorder
	if cfg.RateLimit.CommandsPerSecond > 0 {
		sim.Limiter = auxcache.NewDebouncer(cfg.RateLimit.CommandsPerSecond, cfg.RateLimit.Burst)
	}
	for _, partition := range cfg.Host.Partitions {
		if err := sim.OnPartitionLoad(ctx, partition); err != nil {
			log.Fatalf("load partition %s: %v (did you run SQL migrations?)", partition, err)
		}
	}

	simDone := make(chan error, 1)
	go func() { simDone <- sim.Run(ctx, cfg.TickInterval()) }()

	wsServer := &http.Server{Addr: cfg.WS.Addr, Handler: wsMux(hub), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ws server stopped", "error", err)
		}
	}()

	h, err := httpadapter.NewHandler(sim, history.UseCase{Events: stores.Events}, kpiRecorder)
	if err != nil {
		log.Fatalf("build http handler: %v", err)
	}
	h.AllowedOrigins = cfg.HTTP.AllowedOrigins
	s := server.Default(server.WithHostPorts(cfg.HTTP.Addr))
	h.RegisterRoutes(s)

	logger.Info("townsim server listening", "http", cfg.HTTP.Addr, "ws", cfg.WS.Addr, "storage", cfg.Storage.Backend, "partitions", cfg.Host.Partitions)
	s.Spin()

	cancel()
	if err := <-simDone; err != nil {
		logger.Error("final save failed", "error", err)
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = wsServer.Shutdown(shutdownCtx)
}

func resolveConfigPath() string {
	return strings.TrimSpace(os.Getenv("TOWNSIM_CONFIG"))
}

func newLogger(cfg config.Config) *slog.Logger {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func wsMux(hub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	return mux
}

// buildStores wires the configured backend. The event log goes to the
// sqlite index when one is configured, otherwise to the backend's own store.
func buildStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (host.Stores, func(), error) {
	var stores host.Stores
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool := gormrepo.DefaultPoolConfig()
		if cfg.Storage.MaxOpenConns > 0 {
			pool.MaxOpenConns = cfg.Storage.MaxOpenConns
		}
		db, err := gormrepo.OpenPostgres(cfg.Storage.DSN, pool)
		if err != nil {
			return stores, closeAll, err
		}
		if dir := strings.TrimSpace(cfg.Storage.MigrationsDir); dir != "" {
			applied, err := gormrepo.ApplyMigrations(ctx, db, dir)
			if err != nil {
				return stores, closeAll, err
			}
			if len(applied) > 0 {
				logger.Info("migrations applied", "versions", applied)
			}
		}
		stores.Towns = gormrepo.NewTownRepo(db)
		stores.Contracts = gormrepo.NewContractRepo(db)
		stores.Clock = gormrepo.NewClockRepo(db)
		stores.Events = gormrepo.NewEventRepo(db)
		stores.Tx = gormrepo.NewTxManager(db)
	case config.BackendSnapshot:
		snap := snapshot.NewStore(cfg.Storage.SnapshotDir)
		stores.Towns = snap
		stores.Contracts = snap
		stores.Clock = snap
		stores.Events = memory.NewEventRepo(memory.NewStore())
	default:
		store := memory.NewStore()
		stores.Towns = memory.NewTownRepo(store)
		stores.Contracts = memory.NewContractRepo(store)
		stores.Clock = memory.NewClockRepo(store)
		stores.Events = memory.NewEventRepo(store)
		stores.Tx = memory.NewTxManager(store)
	}

	if path := strings.TrimSpace(cfg.Storage.EventIndexPath); path != "" {
		idx, err := sqliterepo.Open(path)
		if err != nil {
			return stores, closeAll, err
		}
		closers = append(closers, func() {
			if err := idx.Close(); err != nil {
				logger.Warn("close event index", "error", err)
			}
		})
		stores.Events = idx
	}
	return stores, closeAll, nil
}
