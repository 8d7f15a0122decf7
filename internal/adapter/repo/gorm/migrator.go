package gormrepo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

const migrationsTable = "townsim_schema_migrations"

type appliedMigration struct {
	Version  string `gorm:"column:version"`
	Checksum string `gorm:"column:checksum"`
}

// ApplyMigrations runs every *.sql file in dir that is not yet recorded, in
// name order, each in its own transaction, and returns the versions it
// applied. A recorded migration whose file changed since aborts the run.
func ApplyMigrations(ctx context.Context, db *gorm.DB, dir string) ([]string, error) {
	db = db.WithContext(ctx)
	createMetaTableSQL := `
CREATE TABLE IF NOT EXISTS ` + migrationsTable + ` (
  version TEXT PRIMARY KEY,
  checksum TEXT NOT NULL,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
	if err := db.Exec(createMetaTableSQL).Error; err != nil {
		return nil, fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	files, err := migrationFiles(dir)
	if err != nil {
		return nil, err
	}

	rows := []appliedMigration{}
	if err := db.Table(migrationsTable).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	recorded := make(map[string]string, len(rows))
	for _, r := range rows {
		recorded[r.Version] = r.Checksum
	}

	applied := []string{}
	for _, name := range files {
		version := strings.TrimSuffix(name, ".sql")
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := checksum(content)
		if prev, ok := recorded[version]; ok {
			if prev != sum {
				return applied, fmt.Errorf("migration %s changed after it was applied", version)
			}
			continue
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(string(content)).Error; err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			insert := `INSERT INTO ` + migrationsTable + `(version, checksum, applied_at) VALUES (?, ?, ?)`
			if err := tx.Exec(insert, version, sum, time.Now().UTC()).Error; err != nil {
				return fmt.Errorf("record migration %s: %w", version, err)
			}
			return nil
		})
		if err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}
	return applied, nil
}

// migrationFiles lists the *.sql files directly under dir, sorted by name.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migration dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
