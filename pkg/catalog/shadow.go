// Package catalog implements the shadow type catalog (§4.3) and the
// pg_catalog virtual-table emulator (§4.7) that answers PostgreSQL
// introspection queries against SQLite's actual schema.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Reserved marks every shadow-catalog table name, keeping them out of the
// user's namespace and out of pg_class's emulated results.
const Reserved = "__pgsqlite_"

const shadowDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_schema (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	pg_type TEXT NOT NULL,
	sqlite_type TEXT NOT NULL,
	type_modifier INTEGER,
	ordinal INTEGER NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

CREATE TABLE IF NOT EXISTS __pgsqlite_enum_types (
	type_name TEXT PRIMARY KEY,
	type_oid INTEGER NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS __pgsqlite_enum_labels (
	type_oid INTEGER NOT NULL,
	label TEXT NOT NULL,
	sort_order INTEGER NOT NULL,
	PRIMARY KEY (type_oid, label)
);

CREATE TABLE IF NOT EXISTS __pgsqlite_enum_usage (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	type_name TEXT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

CREATE TABLE IF NOT EXISTS __pgsqlite_numeric_constraints (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	precision INTEGER NOT NULL,
	scale INTEGER NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

CREATE TABLE IF NOT EXISTS __pgsqlite_string_constraints (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	max_length INTEGER NOT NULL,
	is_char_type INTEGER NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

CREATE TABLE IF NOT EXISTS __pgsqlite_fts_assoc (
	table_name TEXT NOT NULL,
	column_name TEXT NOT NULL,
	fts_table TEXT NOT NULL,
	PRIMARY KEY (table_name, column_name)
);

CREATE TABLE IF NOT EXISTS __pgsqlite_meta (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
INSERT OR IGNORE INTO __pgsqlite_meta (key, value) VALUES ('schema_version', 0);
INSERT OR IGNORE INTO __pgsqlite_meta (key, value) VALUES ('next_enum_oid', 10000);
`

// EnsureShadowSchema creates every shadow-catalog table if absent. Called
// once per database open, ahead of the user migration runner's own
// bookkeeping (pkg/migration covers versioning these tables themselves).
func EnsureShadowSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, shadowDDL)
	return err
}

// ColumnType is one shadow-catalog row: the authoritative PostgreSQL type
// for a user column that SQLite's own affinity can't recover.
type ColumnType struct {
	Table        string
	Column       string
	PGType       string
	SQLiteType   string
	TypeModifier *int64
	Ordinal      int
}

func RecordColumn(ctx context.Context, db *sql.DB, c ColumnType) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_schema (table_name, column_name, pg_type, sqlite_type, type_modifier, ordinal)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, column_name) DO UPDATE SET
			pg_type=excluded.pg_type, sqlite_type=excluded.sqlite_type,
			type_modifier=excluded.type_modifier, ordinal=excluded.ordinal`,
		c.Table, c.Column, c.PGType, c.SQLiteType, c.TypeModifier, c.Ordinal)
	return err
}

func LookupColumn(ctx context.Context, db *sql.DB, table, column string) (ColumnType, bool, error) {
	row := db.QueryRowContext(ctx, `
		SELECT table_name, column_name, pg_type, sqlite_type, type_modifier, ordinal
		FROM __pgsqlite_schema WHERE table_name = ? AND column_name = ?`, table, column)
	var c ColumnType
	if err := row.Scan(&c.Table, &c.Column, &c.PGType, &c.SQLiteType, &c.TypeModifier, &c.Ordinal); err != nil {
		if err == sql.ErrNoRows {
			return ColumnType{}, false, nil
		}
		return ColumnType{}, false, err
	}
	return c, true, nil
}

func DropTableColumns(ctx context.Context, db *sql.DB, table string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM __pgsqlite_schema WHERE table_name = ?`, table)
	return err
}

// SchemaVersion returns the monotonic schema-version counter (§3, §4.8).
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, `SELECT value FROM __pgsqlite_meta WHERE key = 'schema_version'`).Scan(&v)
	return v, err
}

// BumpSchemaVersion advances the counter; every DDL statement calls this
// exactly once, providing the cache subsystem's invalidation signal.
func BumpSchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	_, err := db.ExecContext(ctx, `UPDATE __pgsqlite_meta SET value = value + 1 WHERE key = 'schema_version'`)
	if err != nil {
		return 0, err
	}
	return SchemaVersion(ctx, db)
}

// NextEnumOID hands out the next synthetic type OID (>= 10000, unique,
// monotonic, per §3).
func NextEnumOID(ctx context.Context, db *sql.DB) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	var oid int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM __pgsqlite_meta WHERE key = 'next_enum_oid'`).Scan(&oid); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE __pgsqlite_meta SET value = value + 1 WHERE key = 'next_enum_oid'`); err != nil {
		return 0, err
	}
	return oid, tx.Commit()
}

// EnumType is one CREATE TYPE ... AS ENUM definition.
type EnumType struct {
	Name   string
	OID    int64
	Labels []string
}

func CreateEnumType(ctx context.Context, db *sql.DB, e EnumType) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO __pgsqlite_enum_types (type_name, type_oid) VALUES (?, ?)`, e.Name, e.OID); err != nil {
		return fmt.Errorf("register enum type %s: %w", e.Name, err)
	}
	for i, label := range e.Labels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO __pgsqlite_enum_labels (type_oid, label, sort_order) VALUES (?, ?, ?)`, e.OID, label, i); err != nil {
			return fmt.Errorf("register enum label %s.%s: %w", e.Name, label, err)
		}
	}
	return tx.Commit()
}

func LookupEnumType(ctx context.Context, db *sql.DB, name string) (EnumType, bool, error) {
	var e EnumType
	e.Name = name
	if err := db.QueryRowContext(ctx, `SELECT type_oid FROM __pgsqlite_enum_types WHERE type_name = ?`, name).Scan(&e.OID); err != nil {
		if err == sql.ErrNoRows {
			return EnumType{}, false, nil
		}
		return EnumType{}, false, err
	}
	rows, err := db.QueryContext(ctx, `SELECT label FROM __pgsqlite_enum_labels WHERE type_oid = ? ORDER BY sort_order`, e.OID)
	if err != nil {
		return EnumType{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return EnumType{}, false, err
		}
		e.Labels = append(e.Labels, label)
	}
	return e, true, rows.Err()
}

func DropEnumType(ctx context.Context, db *sql.DB, name string) error {
	var oid int64
	if err := db.QueryRowContext(ctx, `SELECT type_oid FROM __pgsqlite_enum_types WHERE type_name = ?`, name).Scan(&oid); err != nil {
		return err
	}
	var usageCount int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM __pgsqlite_enum_usage WHERE type_name = ?`, name).Scan(&usageCount); err != nil {
		return err
	}
	if usageCount > 0 {
		return fmt.Errorf("cannot drop type %s because other objects depend on it", name)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM __pgsqlite_enum_labels WHERE type_oid = ?`, oid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM __pgsqlite_enum_types WHERE type_name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func DropEnumTypeCascade(ctx context.Context, db *sql.DB, name string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	var oid int64
	if err := tx.QueryRowContext(ctx, `SELECT type_oid FROM __pgsqlite_enum_types WHERE type_name = ?`, name).Scan(&oid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM __pgsqlite_enum_usage WHERE type_name = ?`, name); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM __pgsqlite_enum_labels WHERE type_oid = ?`, oid); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM __pgsqlite_enum_types WHERE type_name = ?`, name); err != nil {
		return err
	}
	return tx.Commit()
}

func RecordEnumUsage(ctx context.Context, db *sql.DB, table, column, typeName string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_enum_usage (table_name, column_name, type_name) VALUES (?, ?, ?)
		ON CONFLICT(table_name, column_name) DO UPDATE SET type_name=excluded.type_name`,
		table, column, typeName)
	return err
}

func RecordNumericConstraint(ctx context.Context, db *sql.DB, table, column string, precision, scale int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_numeric_constraints (table_name, column_name, precision, scale) VALUES (?, ?, ?, ?)
		ON CONFLICT(table_name, column_name) DO UPDATE SET precision=excluded.precision, scale=excluded.scale`,
		table, column, precision, scale)
	return err
}

func LookupNumericConstraint(ctx context.Context, db *sql.DB, table, column string) (precision, scale int, ok bool, err error) {
	row := db.QueryRowContext(ctx, `SELECT precision, scale FROM __pgsqlite_numeric_constraints WHERE table_name = ? AND column_name = ?`, table, column)
	if scanErr := row.Scan(&precision, &scale); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return 0, 0, false, nil
		}
		return 0, 0, false, scanErr
	}
	return precision, scale, true, nil
}

func RecordStringConstraint(ctx context.Context, db *sql.DB, table, column string, maxLen int, isChar bool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_string_constraints (table_name, column_name, max_length, is_char_type) VALUES (?, ?, ?, ?)
		ON CONFLICT(table_name, column_name) DO UPDATE SET max_length=excluded.max_length, is_char_type=excluded.is_char_type`,
		table, column, maxLen, isChar)
	return err
}

func RecordFTSAssociation(ctx context.Context, db *sql.DB, table, column, ftsTable string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_fts_assoc (table_name, column_name, fts_table) VALUES (?, ?, ?)
		ON CONFLICT(table_name, column_name) DO UPDATE SET fts_table=excluded.fts_table`,
		table, column, ftsTable)
	return err
}
