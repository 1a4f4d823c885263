package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MigrationsFS carries the embedded schema files. The migrations
// package sets it from an init so the binary never depends on SQL
// files being present on disk:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() {
//	    database.MigrationsFS = migrationsFS
//	    database.MigrationsDir = "."
//	}
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS holding the
// schema files.
var MigrationsDir = "migrations"

// migration is one forward schema step, parsed from a filename of the
// form YYYYMMDD_HHMMSS_description.up.sql.
type migration struct {
	version string // YYYYMMDD_HHMMSS
	name    string // description
	sql     string
}

// Migrate applies every pending schema step, oldest first, each in its
// own transaction and recorded in schema_migrations.
//
// Migrations are forward-only. A failed step is rolled back and stops
// the run; earlier steps stay committed and a rerun after fixing the
// file continues from the failure. Recovering from a bad committed
// step means shipping the next one, not rolling back.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	steps, err := readMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	done, err := db.appliedVersions(ctx)
	if err != nil {
		return fmt.Errorf("reading applied migrations: %w", err)
	}

	for _, m := range steps {
		if done[m.version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// appliedVersions returns the set of already-applied step versions.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.DB.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

// applyMigration runs one step and its bookkeeping row atomically.
func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("executing SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}
	return tx.Commit()
}

// readMigrations collects and orders the embedded *.up.sql files. An
// unset MigrationsFS or a missing directory just means no schema to
// apply, which keeps tests without embedded files working.
func readMigrations() ([]migration, error) {
	var unset embed.FS
	if MigrationsFS == unset {
		return nil, nil
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, nil
	}

	var steps []migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := splitMigrationFile(entry.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(MigrationsFS, filepath.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		steps = append(steps, migration{version: version, name: name, sql: string(body)})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// splitMigrationFile parses YYYYMMDD_HHMMSS_description.up.sql into
// its version and description. Anything else is skipped.
func splitMigrationFile(file string) (version, name string, ok bool) {
	base, found := strings.CutSuffix(file, ".up.sql")
	if !found {
		return "", "", false
	}
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 3 {
		return "", "", false
	}
	return parts[0] + "_" + parts[1], parts[2], true
}
