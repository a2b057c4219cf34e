package server

import (
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(Config{
		Addr:        "127.0.0.1:0",
		DataDir:     t.TempDir(),
		ForeignKeys: true,
		WAL:         true,
	}, logr.Discard())
	t.Cleanup(func() { s.cancel() })
	return s
}

func TestDBPathForRejectsTraversal(t *testing.T) {
	s := newTestServer(t)

	if _, err := s.dbPathFor("../escape"); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := s.dbPathFor(""); err == nil {
		t.Fatal("expected empty name rejection")
	}
	if _, err := s.dbPathFor("a/b"); err == nil {
		t.Fatal("expected path separator rejection")
	}

	path, err := s.dbPathFor("mydb")
	if err != nil {
		t.Fatalf("valid name should not error: %v", err)
	}
	if filepath.Base(path) != "mydb.db" {
		t.Fatalf("got %q", path)
	}
}

func TestCacheForIsStablePerDatabase(t *testing.T) {
	s := newTestServer(t)

	a := s.cacheFor("alpha")
	b := s.cacheFor("alpha")
	if a != b {
		t.Fatal("expected the same cache instance for repeated lookups of the same database")
	}

	c := s.cacheFor("beta")
	if a == c {
		t.Fatal("expected distinct caches for distinct databases")
	}
}

func TestCancelKeyRegistrationAndCancel(t *testing.T) {
	s := newTestServer(t)

	called := false
	key := cancelKey{pid: 1, secret: 2}
	s.registerCancelKey(key, func() { called = true })

	s.handleCancelRequest(1, 2)
	if !called {
		t.Fatal("expected cancel func to run for a matching key")
	}

	called = false
	s.handleCancelRequest(99, 99)
	if called {
		t.Fatal("expected no-op for an unknown key")
	}
}
