package zone

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hearth-core/internal/infrastructure/database"
)

// snapshotKey is the single row key under which the registry snapshot
// is stored.
const snapshotKey = "zones"

// Repository persists registry snapshots.
//
// The registry persists the whole snapshot after every configuration
// mutation, so implementations only need a single-document round-trip.
type Repository interface {
	// Save writes the snapshot, replacing any previous one.
	Save(ctx context.Context, snap *Snapshot) error

	// Load returns the stored snapshot, or nil when none exists yet.
	Load(ctx context.Context) (*Snapshot, error)
}

// SQLiteRepository stores the registry snapshot as a JSON document in
// the registry_snapshot table.
type SQLiteRepository struct {
	db *database.DB
}

// NewSQLiteRepository creates a repository backed by the given database.
func NewSQLiteRepository(db *database.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save serialises the snapshot and upserts the single storage row.
func (r *SQLiteRepository) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO registry_snapshot (id, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at
	`, snapshotKey, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	return nil
}

// Load reads and deserialises the stored snapshot. A missing row is
// not an error: it returns (nil, nil) so a fresh install starts empty.
func (r *SQLiteRepository) Load(ctx context.Context) (*Snapshot, error) {
	var data string
	err := r.db.QueryRowContext(ctx,
		"SELECT data FROM registry_snapshot WHERE id = ?", snapshotKey,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}

	if snap.Zones == nil {
		snap.Zones = make(map[string]*Zone)
	}

	return &snap, nil
}
