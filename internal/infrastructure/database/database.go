package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// openTimeout bounds the connectivity ping during Open.
	openTimeout = 5 * time.Second

	connMaxIdleTime = 30 * time.Minute
)

// DB wraps a sql.DB holding the Hearth registry store. The registry
// snapshot is small and written by a single process, so the pool is
// pinned to one connection and WAL mode keeps concurrent readers
// (health checks, tests) from blocking the writer.
type DB struct {
	*sql.DB
	path string
}

// Config maps the database section of config.yaml.
type Config struct {
	// Path is the SQLite file. Its directory is created on first run.
	Path string

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is the lock wait in seconds before SQLite reports
	// "database is locked".
	BusyTimeout int
}

// Open opens (creating if needed) the registry database, applies the
// connection pragmas, and verifies connectivity with a bounded ping.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, cfg.BusyTimeout*1000)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer is all SQLite gives us anyway.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, path: cfg.Path}

	pingCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on the error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file may not exist until the first write; permissions are
	// tightened once it does.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck

	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to confirm the store is reachable.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ExecContext wraps sql.DB.ExecContext with wrapped errors so callers
// can annotate without double-prefixing.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// QueryRowContext wraps sql.DB.QueryRowContext.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, query, args...)
}
