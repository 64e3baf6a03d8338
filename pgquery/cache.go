package pgquery

import (
	"fmt"
	"sync"

	"github.com/pgwire/client/internal/wire/types"
)

// CacheEntry is one reuse-cache record: the server-side prepared-statement
// name and the parameter type list the server confirmed for it.
type CacheEntry struct {
	PreparedStatementName string
	ParamTypes            []types.OID
	Valid                 bool
}

// Cache maps original statement text to its prepared-statement reuse
// record. An entry becomes valid only once the server's ParameterDescription
// has confirmed type compatibility; a mismatch invalidates it (spec.md §3).
//
// Grounded on the Set/Get statement cache in jeroenrinzema-psql-wire's
// cache.go, generalized from a bind-name keyed cache to one keyed on
// statement text so repeated executions of the same SQL reuse the same
// server-side prepared statement.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	nextID  uint64
}

// NewCache returns an empty reuse cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*CacheEntry)}
}

// Lookup returns the cached entry for key, if any, and whether it is valid.
func (c *Cache) Lookup(key string) (*CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !e.Valid {
		return nil, false
	}
	return e, true
}

// NextStatementName allocates a monotonically increasing, 12-digit
// zero-padded prepared-statement name (spec.md §4.4).
func (c *Cache) NextStatementName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	return fmt.Sprintf("%012d", c.nextID)
}

// Store records a newly confirmed prepared statement.
func (c *Cache) Store(key, statementName string, paramTypes []types.OID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &CacheEntry{
		PreparedStatementName: statementName,
		ParamTypes:            paramTypes,
		Valid:                 true,
	}
}

// Invalidate discards the entry for key, forcing the next execution to
// re-Parse (e.g. after a ParameterDescription mismatch).
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
