package session

import (
	"path/filepath"
	"testing"

	"github.com/kqlite/kqlite-pg/pkg/sqlitedb"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlitedb.Open(path, true, true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestGUCSetGet(t *testing.T) {
	s := newTestSession(t)

	if v, ok := s.Get("TimeZone"); !ok || v != "UTC" {
		t.Fatalf("expected default TimeZone=UTC, got %q ok=%v", v, ok)
	}

	s.Set("TimeZone", "America/New_York")
	if v, _ := s.Get("TimeZone"); v != "America/New_York" {
		t.Fatalf("got %q after Set", v)
	}

	if _, ok := s.Get("does_not_exist"); ok {
		t.Fatal("expected miss for an unset GUC")
	}
}

func TestPreparedStatementLifecycle(t *testing.T) {
	s := newTestSession(t)
	ps := &PreparedStatement{Name: "p1", OriginalSQL: "SELECT 1", SQL: "SELECT 1"}

	if err := s.AddPreparedStatement("p1", ps); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddPreparedStatement("p1", ps); err == nil {
		t.Fatal("expected duplicate prepared statement name to fail")
	}

	got, ok := s.PreparedStatement("p1")
	if !ok || got != ps {
		t.Fatalf("expected to retrieve the same statement, ok=%v", ok)
	}

	s.DeletePreparedStatement("p1")
	if _, ok := s.PreparedStatement("p1"); ok {
		t.Fatal("expected statement gone after delete")
	}
}

func TestPortalLifecycle(t *testing.T) {
	s := newTestSession(t)
	ps := &PreparedStatement{Name: "p1"}

	if err := s.AddPortal("c1", ps, []any{1, "a"}); err != nil {
		t.Fatalf("add portal: %v", err)
	}
	if err := s.AddPortal("c1", ps, nil); err == nil {
		t.Fatal("expected duplicate portal name to fail")
	}

	portal, ok := s.Portal("c1")
	if !ok || len(portal.Args) != 2 {
		t.Fatalf("unexpected portal: %+v ok=%v", portal, ok)
	}

	s.DeletePortal("c1")
	if _, ok := s.Portal("c1"); ok {
		t.Fatal("expected portal gone after delete")
	}
}
