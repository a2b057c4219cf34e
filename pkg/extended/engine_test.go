package extended

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/kqlite/kqlite-pg/pkg/catalog"
	"github.com/kqlite/kqlite-pg/pkg/pgtype"
	"github.com/kqlite/kqlite-pg/pkg/session"
	"github.com/kqlite/kqlite-pg/pkg/sqlitedb"
	"github.com/kqlite/kqlite-pg/pkg/translator"
	"github.com/kqlite/kqlite-pg/pkg/wire"
)

func newTestEngine(t *testing.T) (*Engine, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlitedb.Open(path, true, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	if err := catalog.EnsureShadowSchema(ctx, db.RW()); err != nil {
		t.Fatalf("ensure shadow schema: %v", err)
	}
	if _, err := db.RW().ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	sess := session.New(db)
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	return New(sess, translator.NewPipeline(), w), &buf
}

func TestParseBindExecuteSync(t *testing.T) {
	eng, buf := newTestEngine(t)
	ctx := context.Background()
	codec := pgtype.NewCodec()

	if err := eng.HandleParse(ctx, &pgproto3.Parse{Query: "INSERT INTO widgets (id, name) VALUES (1, 'a')"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := eng.HandleBind(ctx, &pgproto3.Bind{}, codec); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := eng.HandleExecute(ctx, &pgproto3.Execute{}, codec); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := eng.HandleSync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected bytes written to the wire after Sync")
	}
	if eng.state != Ready {
		t.Fatalf("expected Ready state after Sync, got %v", eng.state)
	}
}

func TestBatchFailureDiscardsUntilSync(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	codec := pgtype.NewCodec()

	if err := eng.HandleParse(ctx, &pgproto3.Parse{Query: "INSERT INTO nope (id) VALUES (1)"}); err != nil {
		t.Fatalf("parse itself should not error: %v", err)
	}
	if !eng.batchFailed {
		t.Fatal("expected batchFailed after preparing against a nonexistent table")
	}

	// Subsequent Bind/Execute in the same batch are no-ops until Sync.
	if err := eng.HandleBind(ctx, &pgproto3.Bind{}, codec); err != nil {
		t.Fatalf("bind during failed batch should not itself error: %v", err)
	}
	if err := eng.HandleExecute(ctx, &pgproto3.Execute{}, codec); err != nil {
		t.Fatalf("execute during failed batch should not itself error: %v", err)
	}

	if err := eng.HandleSync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if eng.batchFailed {
		t.Fatal("expected batchFailed cleared after Sync")
	}
}

func TestDuplicatePreparedStatementNameFails(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if err := eng.HandleParse(ctx, &pgproto3.Parse{Name: "p1", Query: "SELECT 1"}); err != nil {
		t.Fatalf("first parse: %v", err)
	}
	if err := eng.HandleSync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := eng.HandleParse(ctx, &pgproto3.Parse{Name: "p1", Query: "SELECT 2"}); err != nil {
		t.Fatalf("second parse call itself should not error: %v", err)
	}
	if !eng.batchFailed {
		t.Fatal("expected batchFailed reusing an existing prepared statement name")
	}
}

func TestParseSuppliedOIDsWinOverInference(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if err := eng.HandleParse(ctx, &pgproto3.Parse{
		Name:          "p2",
		Query:         "SELECT $1",
		ParameterOIDs: []uint32{23},
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	ps, ok := eng.Session.PreparedStatement("p2")
	if !ok {
		t.Fatal("expected prepared statement to be registered")
	}
	if len(ps.ParamOIDs) != 1 || ps.ParamOIDs[0] != 23 {
		t.Fatalf("expected client-supplied OID 23 to win, got %v", ps.ParamOIDs)
	}
}
