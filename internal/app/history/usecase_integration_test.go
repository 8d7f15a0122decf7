package history

import (
	"context"
	"os"
	"testing"
	"time"

	gormrepo "townsim/internal/adapter/repo/gorm"
	"townsim/internal/app/ports"
)

func TestUseCase_E2E_FiltersByOccurredTimeWindow(t *testing.T) {
	dsn := os.Getenv("TOWNSIM_DB_DSN")
	if dsn == "" {
		t.Skip("TOWNSIM_DB_DSN is required for integration test")
	}

	db, err := gormrepo.OpenPostgres(dsn, gormrepo.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	townID := "it-history-window"
	ctx := context.Background()
	if err := db.Exec("DELETE FROM town_events WHERE town_id = ?", townID).Error; err != nil {
		t.Fatalf("cleanup town_events: %v", err)
	}

	eventRepo := gormrepo.NewEventRepo(db)
	if err := eventRepo.Append(ctx, []ports.Event{
		{Partition: "overworld", TownID: townID, Type: "town_created", Tick: 1, OccurredAt: time.Unix(1700000000, 0), Payload: map[string]any{"population": 0}},
		{Partition: "overworld", TownID: townID, Type: "town_grew", Tick: 2, OccurredAt: time.Unix(1700003600, 0), Payload: map[string]any{"population": 3}},
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := UseCase{Events: eventRepo}.Execute(ctx, Request{
		TownID:       townID,
		Limit:        50,
		OccurredFrom: 1700003000,
		OccurredTo:   1700004000,
	})
	if err != nil {
		t.Fatalf("history execute: %v", err)
	}
	if got, want := len(out.Events), 1; got != want {
		t.Fatalf("filtered event count mismatch: got=%d want=%d", got, want)
	}
	if got, want := out.Latest.Population, 3; got != want {
		t.Fatalf("population mismatch: got=%d want=%d", got, want)
	}
}
