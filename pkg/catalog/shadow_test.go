package catalog

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

func TestSchemaVersionMonotonic(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	v0, err := SchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	v1, err := BumpSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("bump: %v", err)
	}
	if v1 != v0+1 {
		t.Fatalf("expected monotonic increase, got %d -> %d", v0, v1)
	}
}

func TestEnumLifecycle(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	oid, err := NextEnumOID(ctx, db)
	if err != nil {
		t.Fatalf("next oid: %v", err)
	}
	if oid < 10000 {
		t.Fatalf("enum oid %d must be >= 10000", oid)
	}

	err = CreateEnumType(ctx, db, EnumType{Name: "mood", OID: oid, Labels: []string{"h", "s"}})
	if err != nil {
		t.Fatalf("create enum: %v", err)
	}

	got, ok, err := LookupEnumType(ctx, db, "mood")
	if err != nil || !ok {
		t.Fatalf("lookup enum: ok=%v err=%v", ok, err)
	}
	if len(got.Labels) != 2 || got.Labels[0] != "h" || got.Labels[1] != "s" {
		t.Fatalf("unexpected labels: %v", got.Labels)
	}

	if err := RecordEnumUsage(ctx, db, "p", "m", "mood"); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	if err := DropEnumType(ctx, db, "mood"); err == nil {
		t.Fatal("expected dependency error dropping enum still in use")
	}
	if err := DropEnumTypeCascade(ctx, db, "mood"); err != nil {
		t.Fatalf("cascade drop: %v", err)
	}
}

func TestNumericConstraintRoundTrip(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	if err := RecordNumericConstraint(ctx, db, "s", "price", 10, 2); err != nil {
		t.Fatalf("record: %v", err)
	}
	p, s, ok, err := LookupNumericConstraint(ctx, db, "s", "price")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if p != 10 || s != 2 {
		t.Fatalf("got precision=%d scale=%d, want 10,2", p, s)
	}
}
