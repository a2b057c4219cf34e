package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kqlite/kqlite-pg/pkg/catalog"
	"github.com/kqlite/kqlite-pg/pkg/session"
	"github.com/kqlite/kqlite-pg/pkg/sqlitedb"
	"github.com/kqlite/kqlite-pg/pkg/translator"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlitedb.Open(path, true, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := catalog.EnsureShadowSchema(context.Background(), db.RW()); err != nil {
		t.Fatalf("ensure shadow schema: %v", err)
	}

	sess := session.New(db)
	return New(sess, translator.NewPipeline())
}

func TestClassifyCommand(t *testing.T) {
	cases := []struct {
		query string
		want  CommandType
	}{
		{"SELECT 1", CmdSelect},
		{"  select * from t", CmdSelect},
		{"insert into t values (1)", CmdInsert},
		{"UPDATE t SET a = 1", CmdUpdate},
		{"delete from t", CmdDelete},
		{"BEGIN", CmdBegin},
		{"START TRANSACTION", CmdBegin},
		{"COMMIT", CmdCommit},
		{"ROLLBACK TO sp1", CmdRollbackTo},
		{"ROLLBACK", CmdRollback},
		{"SAVEPOINT sp1", CmdSavepoint},
		{"RELEASE sp1", CmdRelease},
		{"SET TimeZone = 'UTC'", CmdSet},
		{"SHOW TimeZone", CmdShow},
		{"CREATE TABLE t (a int)", CmdOther},
	}
	for _, c := range cases {
		if got := ClassifyCommand(c.query); got != c.want {
			t.Errorf("ClassifyCommand(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func TestSetAndShowRoundTrip(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()

	if _, err := ex.ExecuteSimple(ctx, "SET TimeZone = 'America/New_York'"); err != nil {
		t.Fatalf("set: %v", err)
	}

	result, err := ex.ExecuteSimple(ctx, "SHOW TimeZone")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !result.HasSynthetic {
		t.Fatal("expected a synthetic result from SHOW")
	}
	if result.SyntheticValue != "America/New_York" {
		t.Fatalf("got %q, want America/New_York", result.SyntheticValue)
	}
}

func TestShowUnsetGUCReturnsEmpty(t *testing.T) {
	ex := newTestExecutor(t)
	result, err := ex.ExecuteSimple(context.Background(), "SHOW statement_timeout")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if result.SyntheticValue != "" {
		t.Fatalf("expected empty value for unset GUC, got %q", result.SyntheticValue)
	}
}

func TestBeginCommitRollbackLifecycle(t *testing.T) {
	ex := newTestExecutor(t)
	ctx := context.Background()

	if _, err := ex.ExecuteSimple(ctx, "BEGIN"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if !ex.Session.InTxn {
		t.Fatal("expected InTxn after BEGIN")
	}
	if _, err := ex.ExecuteSimple(ctx, "BEGIN"); err != ErrTxAlreadyOpen {
		t.Fatalf("expected ErrTxAlreadyOpen, got %v", err)
	}

	if _, err := ex.ExecuteSimple(ctx, "COMMIT"); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ex.Session.InTxn {
		t.Fatal("expected InTxn false after COMMIT")
	}
	if _, err := ex.ExecuteSimple(ctx, "ROLLBACK"); err != ErrNoActiveTx {
		t.Fatalf("expected ErrNoActiveTx, got %v", err)
	}
}

func TestCommandTagShapes(t *testing.T) {
	cases := []struct {
		cmd  CommandType
		n    int64
		want string
	}{
		{CmdInsert, 3, "INSERT 0 3"},
		{CmdUpdate, 2, "UPDATE 2"},
		{CmdDelete, 1, "DELETE 1"},
	}
	for _, c := range cases {
		if got := commandTag(c.cmd, c.n); got != c.want {
			t.Errorf("commandTag(%v, %d) = %q, want %q", c.cmd, c.n, got, c.want)
		}
	}
}
