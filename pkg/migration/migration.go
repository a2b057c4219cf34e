// Package migration runs a small versioned, checksum-stamped migration
// set against the shadow catalog's own bookkeeping schema. It migrates
// __pgsqlite_* tables, not user schema — the general DDL-migration
// runner for user tables stays out of scope per spec.md §1. Grounded on
// original_source/src/migration/mod.rs's Migration/checksum shape,
// re-expressed in Go rather than transliterated.
package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// Migration is one versioned step against the shadow catalog's own
// bookkeeping tables (distinct from pkg/catalog's per-object DDL, which
// runs at user-statement time rather than at database-open time).
type Migration struct {
	Version     int
	Name        string
	Description string
	SQL         string
}

// checksum hashes version+name+description+sql so a later run can detect
// a migration file that changed after being applied — the original's own
// integrity check, kept here even though this module has no on-disk
// migration files to tamper with.
func (m Migration) checksum() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s:%s:%s", m.Version, m.Name, m.Description, m.SQL)
	return hex.EncodeToString(h.Sum(nil))
}

const bookkeepingDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_migrations (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	checksum TEXT NOT NULL,
	applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
`

// migrations is the ordered set of bookkeeping-schema changes. Entries
// are never edited once released, only appended; pkg/catalog/shadow.go's
// shadowDDL covers the tables' initial shape, so version 1 here only
// records that baseline as already-applied bookkeeping.
var migrations = []Migration{
	{
		Version:     1,
		Name:        "baseline_shadow_catalog",
		Description: "record the shadow catalog tables created by EnsureShadowSchema as migration baseline",
		SQL:         "", // no-op: EnsureShadowSchema already created these tables
	},
	{
		Version:     2,
		Name:        "fts_association_table",
		Description: "ensure __pgsqlite_fts_assoc exists for tsvector-backed FTS5 shadow tables",
		SQL: `CREATE TABLE IF NOT EXISTS __pgsqlite_fts_assoc (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			fts_table TEXT NOT NULL,
			PRIMARY KEY (table_name, column_name)
		);`,
	},
}

// Apply runs every migration not yet recorded in __pgsqlite_migrations,
// in version order, each in its own transaction, verifying the checksum
// of any migration that was already applied.
func Apply(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, bookkeepingDDL); err != nil {
		return fmt.Errorf("ensure migration bookkeeping table: %w", err)
	}

	for _, m := range migrations {
		applied, storedChecksum, err := lookup(ctx, db, m.Version)
		if err != nil {
			return err
		}
		if applied {
			if storedChecksum != m.checksum() {
				return fmt.Errorf("migration %d (%s) checksum mismatch: recorded migrations must never change", m.Version, m.Name)
			}
			continue
		}
		if err := applyOne(ctx, db, m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func lookup(ctx context.Context, db *sql.DB, version int) (applied bool, checksum string, err error) {
	row := db.QueryRowContext(ctx, `SELECT checksum FROM __pgsqlite_migrations WHERE version = ?`, version)
	if scanErr := row.Scan(&checksum); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return false, "", nil
		}
		return false, "", scanErr
	}
	return true, checksum, nil
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if m.SQL != "" {
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO __pgsqlite_migrations (version, name, checksum) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.checksum()); err != nil {
		return err
	}
	return tx.Commit()
}
