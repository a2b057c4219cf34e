package server

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/lib/pq"
)

// startTestServer boots a real listener on an OS-assigned port and returns
// a postgres connection string dialing it, grounded on the teacher's
// pkg/store/bootstrap.go pattern of driving the gateway with a real
// PostgreSQL client rather than calling internals directly.
func startTestServer(t *testing.T) string {
	t.Helper()
	s := New(Config{
		Addr:        "127.0.0.1:0",
		DataDir:     t.TempDir(),
		ForeignKeys: true,
		WAL:         true,
	}, logr.Discard())

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Logf("stop: %v", err)
		}
	})

	addr := s.listener.Addr().String()
	return fmt.Sprintf("postgres://postgres@%s/testdb?sslmode=disable", addr)
}

func TestIntegrationSimpleQueryRoundTrip(t *testing.T) {
	dsn := startTestServer(t)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'sprocket')`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var name string
	if err := db.QueryRowContext(ctx, `SELECT name FROM widgets WHERE id = 1`).Scan(&name); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "sprocket" {
		t.Fatalf("got %q, want sprocket", name)
	}
}

func TestIntegrationExtendedProtocolPreparedStatement(t *testing.T) {
	dsn := startTestServer(t)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, `CREATE TABLE gadgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	stmt, err := db.PrepareContext(ctx, `INSERT INTO gadgets (id, name) VALUES ($1, $2)`)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()

	for i, n := range []string{"alpha", "beta", "gamma"} {
		if _, err := stmt.ExecContext(ctx, i+1, n); err != nil {
			t.Fatalf("exec %d: %v", i, err)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gadgets`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("got %d rows, want 3", count)
	}
}

func TestIntegrationTransactionRollback(t *testing.T) {
	dsn := startTestServer(t)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, `CREATE TABLE accounts (id INTEGER PRIMARY KEY, balance INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO accounts (id, balance) VALUES (1, 100)`); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET balance = 0 WHERE id = 1`); err != nil {
		t.Fatalf("update in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	var balance int
	if err := db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = 1`).Scan(&balance); err != nil {
		t.Fatalf("select: %v", err)
	}
	if balance != 100 {
		t.Fatalf("got balance %d after rollback, want 100 (rollback should have discarded the update)", balance)
	}
}
