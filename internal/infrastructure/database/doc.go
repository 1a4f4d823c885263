// Package database opens and maintains the SQLite store backing the
// Hearth zone registry.
//
// The store holds a single JSON snapshot of every zone and the global
// heating configuration, rewritten on each registry mutation. That
// access pattern shapes the package: one pooled connection (SQLite has
// one writer anyway), WAL mode so health checks and tests can read
// during a write, and a busy timeout instead of immediate lock errors.
//
// Schema lives in embedded, forward-only migrations applied at boot:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// New schema steps must be additive. Columns are added nullable or
// with defaults, never dropped or renamed, so any older binary can
// still read a newer file.
package database
