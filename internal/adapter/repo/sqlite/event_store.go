// Package sqlite keeps the town event log in a local SQLite file, for
// single-node deployments that run without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"townsim/internal/app/ports"
)

type EventStore struct {
	db *sql.DB
}

func Open(path string) (*EventStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &EventStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS town_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			partition_id TEXT NOT NULL,
			town_id TEXT NOT NULL,
			type TEXT NOT NULL,
			tick INTEGER NOT NULL,
			occurred_at INTEGER NOT NULL,
			payload TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS town_events_town ON town_events(town_id, occurred_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *EventStore) Close() error {
	return s.db.Close()
}

func (s *EventStore) Append(ctx context.Context, events []ports.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO town_events(partition_id, town_id, type, tick, occurred_at, payload) VALUES (?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		payload := []byte("{}")
		if e.Payload != nil {
			if payload, err = json.Marshal(e.Payload); err != nil {
				return fmt.Errorf("encode %s payload: %w", e.Type, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, e.Partition, e.TownID, e.Type, int64(e.Tick), e.OccurredAt.UnixNano(), string(payload)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListByTown returns the newest limit events, oldest first.
func (s *EventStore) ListByTown(ctx context.Context, townID string, limit int) ([]ports.Event, error) {
	q := `SELECT partition_id, town_id, type, tick, occurred_at, payload FROM town_events
		WHERE town_id = ? ORDER BY occurred_at DESC, id DESC`
	args := []any{townID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.Event
	for rows.Next() {
		var (
			e        ports.Event
			tick     int64
			occurred int64
			payload  string
		)
		if err := rows.Scan(&e.Partition, &e.TownID, &e.Type, &tick, &occurred, &payload); err != nil {
			return nil, err
		}
		e.Tick = uint64(tick)
		e.OccurredAt = time.Unix(0, occurred).UTC()
		_ = json.Unmarshal([]byte(payload), &e.Payload)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []ports.Event{}
	}
	return out, nil
}
