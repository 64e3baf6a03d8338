// Package pgquery holds the in-flight Query value the connection FSM
// drives to completion, and the prepared-statement reuse cache.
package pgquery

import (
	"sync"

	"github.com/pgwire/client/internal/wire/message"
	"github.com/pgwire/client/internal/wire/types"
	"github.com/pgwire/client/substitution"
)

// Row is one decoded result row: Values[i] is the Go value of the column
// described by Fields[i], in the order RowDescription reported them.
type Row struct {
	Values []any
	Fields []message.ColumnDescriptor
}

// Result is what a Query resolves with: either an affected-row count
// (execute path) or a row set (query path).
type Result struct {
	AffectedRows int64
	Rows         []Row
	Fields       []message.ColumnDescriptor
}

// TxContext identifies the transaction a Query belongs to, if any. The FSM
// uses it to route the query through the transaction's own FIFO instead of
// the connection's.
type TxContext struct {
	ID int64
}

// Query is one statement en route from the caller to the backend and back.
// Exactly one Query is "in flight" on a connection at a time (spec.md §3).
type Query struct {
	Statement string
	Values    map[string]any

	OnlyReturnAffectedRowCount bool
	AllowReuse                 bool
	StatementIdentifier        string

	// ControlStatement marks the BEGIN/COMMIT/ROLLBACK bookkeeping queries a
	// transaction issues itself; these are the only queries still
	// dispatched once a transaction has entered TransactionFailure.
	ControlStatement bool

	Tx *TxContext

	// set once substitution has run
	substitutedText string
	params          []substitution.Param

	fields       []message.ColumnDescriptor
	rows         []Row
	affectedRows int64

	returningException error

	done chan struct{}
	once sync.Once
	res  Result
	err  error
}

// NewQuery builds a pending query. The done channel closes exactly once,
// when Resolve or Fail is called.
func NewQuery(statement string, values map[string]any, onlyCount, allowReuse bool) *Query {
	return &Query{
		Statement:                  statement,
		Values:                     values,
		OnlyReturnAffectedRowCount: onlyCount,
		AllowReuse:                 allowReuse,
		done:                       make(chan struct{}),
	}
}

// Key identifies this query in the reuse cache: by StatementIdentifier if
// the caller supplied one, else by the raw statement text.
func (q *Query) Key() string {
	if q.StatementIdentifier != "" {
		return q.StatementIdentifier
	}
	return q.Statement
}

// Substitute runs the substitutor over the statement, picking the simple or
// extended form depending on OnlyReturnAffectedRowCount.
func (q *Query) Substitute(sub substitution.Substitutor) error {
	if q.OnlyReturnAffectedRowCount {
		text, err := sub.SubstituteText(q.Statement, q.Values)
		if err != nil {
			return err
		}
		q.substitutedText = text
		return nil
	}
	text, params, err := sub.SubstituteExtended(q.Statement, q.Values)
	if err != nil {
		return err
	}
	q.substitutedText = text
	q.params = params
	return nil
}

// SubstitutedText returns the rewritten SQL (simple path: a full literal
// statement; extended path: the statement using $1,$2,… placeholders).
func (q *Query) SubstitutedText() string { return q.substitutedText }

// Params returns the ordered, typed parameter list for the extended path.
func (q *Query) Params() []substitution.Param { return q.params }

// ParamOIDs returns the OID list Parse should declare.
func (q *Query) ParamOIDs() []types.OID {
	oids := make([]types.OID, len(q.params))
	for i, p := range q.params {
		oids[i] = p.Type.OID()
	}
	return oids
}

// OnRowDescription records the column shape for the result about to stream
// in, invalidating any previously accumulated rows (a new RowDescription
// always starts a fresh result set on this connection).
func (q *Query) OnRowDescription(fields []message.ColumnDescriptor) {
	q.fields = fields
	q.rows = nil
}

// OnDataRow appends one already-decoded row, tagged with the recorded
// field shape.
func (q *Query) OnDataRow(decoded []any) {
	q.rows = append(q.rows, Row{Values: decoded, Fields: q.fields})
}

// FieldsSnapshot returns the column shape recorded by the most recent
// RowDescription, used by the FSM to pick a decode OID per column.
func (q *Query) FieldsSnapshot() []message.ColumnDescriptor { return q.fields }

// OnCommandComplete records the affected-row count parsed from a
// CommandComplete tag.
func (q *Query) OnCommandComplete(affectedRows int64) {
	q.affectedRows = affectedRows
}

// OnReturningException records a server ErrorResponse without failing the
// query yet: the FSM keeps draining until ReadyForQuery (spec.md §4.4).
func (q *Query) OnReturningException(err error) {
	if q.returningException == nil {
		q.returningException = err
	}
}

// ReturningException reports the deferred server error, if any.
func (q *Query) ReturningException() error { return q.returningException }

// Resolve completes the query successfully with the accumulated result:
// the affected-row count (execute path) and/or the accumulated rows
// (query path).
func (q *Query) Resolve() {
	q.once.Do(func() {
		q.res = Result{AffectedRows: q.affectedRows, Rows: q.rows, Fields: q.fields}
		close(q.done)
	})
}

// Fail completes the query with an error. Safe to call at most once
// meaningfully; subsequent calls are no-ops (spec.md §3: "exactly once").
func (q *Query) Fail(err error) {
	q.once.Do(func() {
		q.err = err
		close(q.done)
	})
}

// Wait blocks until the query completes and returns its outcome.
func (q *Query) Wait() (Result, error) {
	<-q.done
	return q.res, q.err
}

// Done exposes the completion channel for select-based callers.
func (q *Query) Done() <-chan struct{} { return q.done }
