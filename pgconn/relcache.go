package pgconn

import (
	"context"
	"fmt"
	"sync"
)

// relationNames caches tableOID -> relation name for the lifetime of one
// connection. It is never invalidated: a relation's OID cannot be
// reassigned to a different table without dropping and recreating it
// under a new backend process, which this connection would not survive
// anyway, so there is no eviction policy to get wrong.
//
// Grounded on pgquery.Cache's statement-reuse map (same "map protected by
// its own mutex, populated lazily on first use" shape), generalized from
// caching prepared statements to caching resolved relation names.
type relationNames struct {
	mu    sync.Mutex
	names map[uint32]string
}

func newRelationNames() *relationNames {
	return &relationNames{names: make(map[uint32]string)}
}

func (r *relationNames) get(oid uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.names[oid]
	return name, ok
}

func (r *relationNames) put(oid uint32, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[oid] = name
}

// ResolveRelationName resolves a table OID (as reported in a
// RowDescription column's TableOID field) to its relation name, caching
// the result so repeated lookups for the same table cost nothing after
// the first. The lookup itself runs through the same extended-query path
// user queries use — Parse/Bind/Execute against pg_class — so it goes
// through the driver's own prepared-statement reuse rather than a side
// channel into the connection.
func (c *Conn) ResolveRelationName(ctx context.Context, tableOID uint32) (string, error) {
	if name, ok := c.relCache.get(tableOID); ok {
		return name, nil
	}

	res, err := c.Query(ctx, "SELECT relname FROM pg_class WHERE oid = @oid::oid", map[string]any{
		"oid": int64(tableOID),
	}, true)
	if err != nil {
		return "", err
	}
	if len(res.Rows) == 0 {
		return "", fmt.Errorf("pgwire: no pg_class entry for table OID %d", tableOID)
	}
	name, ok := res.Rows[0].Values[0].(string)
	if !ok {
		return "", fmt.Errorf("pgwire: unexpected relname value type %T", res.Rows[0].Values[0])
	}

	c.relCache.put(tableOID, name)
	return name, nil
}
