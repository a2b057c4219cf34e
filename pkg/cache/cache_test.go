package cache

import (
	"testing"

	"github.com/kqlite/kqlite-pg/pkg/translator"
)

func TestTranslationCacheHitAndInvalidate(t *testing.T) {
	c := NewTranslationCache(8)

	if _, ok := c.Get(1, "select 1"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put(1, "select   1", translator.Result{SQL: "select 1", Changed: false})
	got, ok := c.Get(1, "select 1")
	if !ok {
		t.Fatal("expected hit after Put under the same schema version")
	}
	if got.SQL != "select 1" {
		t.Fatalf("got SQL %q", got.SQL)
	}

	if _, ok := c.Get(2, "select 1"); ok {
		t.Fatal("expected miss after schema version advanced")
	}
}

func TestResultCacheInvalidateByTable(t *testing.T) {
	c := NewResultCache(8, 0)
	c.Put(1, "select * from accounts", ResultEntry{Columns: []string{"id"}})

	if _, ok := c.Get(1, "select * from accounts"); !ok {
		t.Fatal("expected hit before invalidation")
	}
	c.Invalidate("accounts")
	if _, ok := c.Get(1, "select * from accounts"); ok {
		t.Fatal("expected miss after Invalidate(\"accounts\")")
	}
}

func TestParamTypeCacheRoundTrip(t *testing.T) {
	c := NewParamTypeCache(8)
	c.Put(1, "select $1", ParamTypeEntry{OIDs: []uint32{23}, Columns: []string{"id"}})

	got, ok := c.Get(1, "select $1")
	if !ok || len(got.OIDs) != 1 || got.OIDs[0] != 23 {
		t.Fatalf("unexpected entry: %+v ok=%v", got, ok)
	}
}

func TestNewSetBuildsEveryCache(t *testing.T) {
	set := NewSet(DefaultSizes())
	if set.Translation == nil || set.ParamTypes == nil || set.RowDesc == nil || set.Results == nil || set.Connections == nil {
		t.Fatal("NewSet left a cache nil")
	}
}
