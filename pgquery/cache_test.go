package pgquery

import (
	"testing"

	"github.com/pgwire/client/internal/wire/types"
)

func TestCacheLookupMissOnEmptyCache(t *testing.T) {
	c := NewCache()
	if _, ok := c.Lookup("SELECT 1"); ok {
		t.Error("expected a miss on an empty cache")
	}
}

func TestCacheStoreThenLookup(t *testing.T) {
	c := NewCache()
	c.Store("SELECT 1", "000000000001", []types.OID{types.OIDInt4})

	entry, ok := c.Lookup("SELECT 1")
	if !ok {
		t.Fatal("expected a hit after Store")
	}
	if entry.PreparedStatementName != "000000000001" {
		t.Errorf("expected statement name 000000000001, got %s", entry.PreparedStatementName)
	}
	if !entry.Valid {
		t.Error("expected the stored entry to be valid")
	}
}

func TestCacheInvalidateRemovesEntry(t *testing.T) {
	c := NewCache()
	c.Store("SELECT 1", "000000000001", nil)
	c.Invalidate("SELECT 1")
	if _, ok := c.Lookup("SELECT 1"); ok {
		t.Error("expected a miss after Invalidate")
	}
}

func TestCacheNextStatementNameIsMonotonicAndZeroPadded(t *testing.T) {
	c := NewCache()
	n1 := c.NextStatementName()
	n2 := c.NextStatementName()
	if n1 != "000000000001" || n2 != "000000000002" {
		t.Errorf("expected sequential zero-padded names, got %q then %q", n1, n2)
	}
}

func TestCacheStoreOverwritesPriorEntry(t *testing.T) {
	c := NewCache()
	c.Store("SELECT 1", "000000000001", []types.OID{types.OIDInt4})
	c.Store("SELECT 1", "000000000002", []types.OID{types.OIDText})

	entry, ok := c.Lookup("SELECT 1")
	if !ok {
		t.Fatal("expected a hit")
	}
	if entry.PreparedStatementName != "000000000002" {
		t.Errorf("expected the later Store to win, got %s", entry.PreparedStatementName)
	}
}
