package fsm

import "github.com/pgwire/client/pgquery"

// StartTransaction allocates a new transaction context and makes it the
// connection's active transaction. The caller (pgconn's Transaction
// facade) is responsible for enqueuing the BEGIN control query against the
// returned context.
func (m *Machine) StartTransaction() *pgquery.TxContext {
	m.nextTxID++
	m.tx = &txState{id: m.nextTxID}
	return &pgquery.TxContext{ID: m.nextTxID}
}

// TransactionFailed reports whether the connection's active transaction
// has entered the failed state (spec.md §4.4).
func (m *Machine) TransactionFailed() bool {
	return m.tx != nil && m.tx.failed
}

// EndTransaction clears the connection's active transaction once COMMIT or
// ROLLBACK has been issued and acknowledged.
func (m *Machine) EndTransaction() {
	m.tx = nil
}
