package postgresadapter

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/adapters/postgres/migrations"

	"gorm.io/gorm"
)

const migrationTable = "poll_engine_schema_migrations"

// Migrate applies every embedded migration that has not been recorded yet.
// Each file runs in its own transaction together with its bookkeeping row.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("gorm db is required")
	}
	if err := db.WithContext(ctx).Exec(
		"CREATE TABLE IF NOT EXISTS " + migrationTable + " (name TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)",
	).Error; err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var applied int64
			if err := tx.Table(migrationTable).Where("name = ?", name).Count(&applied).Error; err != nil {
				return err
			}
			if applied > 0 {
				return nil
			}
			if err := tx.Exec(string(content)).Error; err != nil {
				return err
			}
			return tx.Exec(
				"INSERT INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
				name,
				time.Now().UTC(),
			).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}
