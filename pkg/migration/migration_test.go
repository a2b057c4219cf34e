package migration

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/kqlite/kqlite-pg/pkg/sqlitedb"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("kqlite-pg-sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	if err := Apply(ctx, db); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := Apply(ctx, db); err != nil {
		t.Fatalf("second apply should be a no-op: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM __pgsqlite_migrations`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d recorded migrations, got %d", len(migrations), count)
	}
}

func TestApplyCreatesFTSAssocTable(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	if err := Apply(ctx, db); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO __pgsqlite_fts_assoc (table_name, column_name, fts_table) VALUES ('docs', 'body', 'docs_fts')`); err != nil {
		t.Fatalf("insert into fts assoc table: %v", err)
	}
}

func TestApplyDetectsChecksumMismatch(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	if err := Apply(ctx, db); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := db.Exec(`UPDATE __pgsqlite_migrations SET checksum = 'tampered' WHERE version = 1`); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if err := Apply(ctx, db); err == nil {
		t.Fatal("expected checksum mismatch error on re-apply")
	}
}
