package main

import (
	"context"
	"path/filepath"
	"testing"

	"townsim/internal/adapter/repo/memory"
	sqliterepo "townsim/internal/adapter/repo/sqlite"
	"townsim/internal/adapter/snapshot"
	"townsim/internal/config"
)

func TestResolveConfigPath_UsesEnv(t *testing.T) {
	t.Setenv("TOWNSIM_CONFIG", " /etc/townsim.yaml ")
	if got := resolveConfigPath(); got != "/etc/townsim.yaml" {
		t.Fatalf("resolveConfigPath()=%q want %q", got, "/etc/townsim.yaml")
	}
}

func TestBuildStores_MemoryDefault(t *testing.T) {
	cfg := config.Default()
	stores, closeStores, err := buildStores(context.Background(), cfg, newLogger(cfg))
	if err != nil {
		t.Fatalf("buildStores: %v", err)
	}
	defer closeStores()
	if _, ok := stores.Towns.(memory.TownRepo); !ok {
		t.Fatalf("expected memory town repo, got %T", stores.Towns)
	}
	if _, ok := stores.Clock.(memory.ClockRepo); !ok {
		t.Fatalf("expected memory clock repo, got %T", stores.Clock)
	}
	if stores.Tx == nil || stores.Events == nil {
		t.Fatalf("expected tx and events wired: %+v", stores)
	}
}

func TestBuildStores_SnapshotWithEventIndex(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendSnapshot
	cfg.Storage.SnapshotDir = filepath.Join(dir, "snapshots")
	cfg.Storage.EventIndexPath = filepath.Join(dir, "events.db")

	stores, closeStores, err := buildStores(context.Background(), cfg, newLogger(cfg))
	if err != nil {
		t.Fatalf("buildStores: %v", err)
	}
	defer closeStores()
	if _, ok := stores.Towns.(*snapshot.Store); !ok {
		t.Fatalf("expected snapshot store, got %T", stores.Towns)
	}
	if _, ok := stores.Clock.(*snapshot.Store); !ok {
		t.Fatalf("expected snapshot clock, got %T", stores.Clock)
	}
	if _, ok := stores.Events.(*sqliterepo.EventStore); !ok {
		t.Fatalf("expected sqlite event index, got %T", stores.Events)
	}
}
