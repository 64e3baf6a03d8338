package fsm

import (
	"github.com/pgwire/client/internal/wire/codec"
	"github.com/pgwire/client/internal/wire/message"
	"github.com/pgwire/client/internal/wire/types"
	"github.com/pgwire/client/pgerr"
	"github.com/pgwire/client/pgquery"
)

// dispatchNext pops the next query from the active FIFO (the transaction's
// if one is ready, else the connection's) and serializes it, transitioning
// to Busy. If serialization fails it completes the query with that error on
// the spot and stays Idle/ReadyInTransaction (spec.md §4.4's
// `DeferredFailure`).
func (m *Machine) dispatchNext() ([]byte, error) {
	q := m.popNext()
	if q == nil {
		return nil, nil
	}
	m.cur = q

	if err := q.Substitute(m.sub); err != nil {
		m.state = DeferredFailure
		q.Fail(err)
		m.cur = nil
		m.state = m.idleState()
		return nil, nil
	}

	if q.OnlyReturnAffectedRowCount {
		out, err := message.SimpleQuery(&m.w, q.SubstitutedText())
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		m.state = Busy
		m.curStatementName = ""
		m.curIsNewParse = false
		return out, nil
	}

	return m.dispatchExtended(q)
}

// popNext removes and returns the head of the active FIFO, preferring the
// transaction queue when one is in progress and ready to proceed.
func (m *Machine) popNext() *pgquery.Query {
	if m.tx != nil && len(m.tx.queue) > 0 {
		q := m.tx.queue[0]
		m.tx.queue = m.tx.queue[1:]
		m.curTx = m.tx
		return q
	}
	m.curTx = nil
	if len(m.queue) == 0 {
		return nil
	}
	q := m.queue[0]
	m.queue = m.queue[1:]
	return q
}

func (m *Machine) idleState() State {
	if m.tx != nil {
		return ReadyInTransaction
	}
	return Idle
}

func (m *Machine) failDispatch(q *pgquery.Query, err error) {
	q.Fail(err)
	m.cur = nil
	m.state = m.idleState()
}

func (m *Machine) dispatchExtended(q *pgquery.Query) ([]byte, error) {
	key := q.Key()

	var out []byte

	if entry, ok := m.cache.Lookup(key); ok && q.AllowReuse {
		params, err := encodeParams(q)
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		m.curStatementName = entry.PreparedStatementName
		m.curIsNewParse = false

		bindOut, err := message.Bind(&m.w, "", entry.PreparedStatementName, params, types.BinaryFormat, []types.FormatCode{types.BinaryFormat})
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		execOut, err := message.Execute(&m.w, "", 0)
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		syncOut, err := message.Sync(&m.w)
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		out = concat(bindOut, execOut, syncOut)
	} else {
		name := m.cache.NextStatementName()
		m.curStatementName = name
		m.curIsNewParse = true

		params, err := encodeParams(q)
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}

		parseOut, err := message.Parse(&m.w, name, q.SubstitutedText(), q.ParamOIDs())
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		describeOut, err := message.Describe(&m.w, message.DescribeStatement, name)
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		bindOut, err := message.Bind(&m.w, "", name, params, types.BinaryFormat, []types.FormatCode{types.BinaryFormat})
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		execOut, err := message.Execute(&m.w, "", 0)
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		syncOut, err := message.Sync(&m.w)
		if err != nil {
			m.failDispatch(q, err)
			return nil, nil
		}
		out = concat(parseOut, describeOut, bindOut, execOut, syncOut)
	}

	m.state = Busy
	return out, nil
}

func encodeParams(q *pgquery.Query) ([]message.BindParam, error) {
	params := q.Params()
	out := make([]message.BindParam, len(params))
	for i, p := range params {
		if p.Value == nil {
			out[i] = message.BindParam{Null: true}
			continue
		}
		b, err := codec.EncodeBinary(p.Value, p.Type)
		if err != nil {
			return nil, err
		}
		out[i] = message.BindParam{Value: b}
	}
	return out, nil
}

// handleParameterDescription validates the server's confirmed parameter
// type list against the declared types and commits or discards the reuse
// cache entry accordingly (spec.md §4.4).
func (m *Machine) handleParameterDescription(mm *message.ParameterDescription) ([]byte, error) {
	if m.cur == nil || !m.curIsNewParse {
		return nil, nil
	}
	declared := m.cur.ParamOIDs()
	if len(declared) != len(mm.ParamTypes) {
		m.cache.Invalidate(m.cur.Key())
		m.cur.OnReturningException(&pgerr.InvalidTypeError{Msg: "server parameter count does not match declared parameters"})
		return nil, nil
	}
	for i, oid := range declared {
		if oid != types.OIDUnknown && oid != mm.ParamTypes[i] {
			m.cache.Invalidate(m.cur.Key())
			m.cur.OnReturningException(&pgerr.InvalidTypeError{Msg: "server parameter type does not match declared type"})
			return nil, nil
		}
	}
	if m.cur.AllowReuse {
		m.cache.Store(m.cur.Key(), m.curStatementName, mm.ParamTypes)
	}
	return nil, nil
}

// handleErrorResponse handles an ErrorResponse wherever it arrives: during
// the handshake it fails `open`; mid-query it is stashed as a deferred
// exception until ReadyForQuery; fatal severities close the connection
// immediately (spec.md §4.4).
func (m *Machine) handleErrorResponse(mm *message.ErrorResponse) ([]byte, error) {
	sev := pgerr.Severity(mm.Severity())
	serverErr := &pgerr.ServerError{
		Severity: sev,
		Code:     mm.Code(),
		Message:  mm.Message(),
		Detail:   mm.Detail(),
		Hint:     mm.Hint(),
		Fields:   mm.Fields,
	}

	switch m.state {
	case SocketConnected, Authenticating, Authenticated:
		m.resolveOpen(serverErr)
		m.state = Closed
		return nil, nil
	}

	if m.cur != nil {
		m.cur.OnReturningException(serverErr)
	}
	if sev.Fatal() {
		m.Close()
		return nil, serverErr
	}
	return nil, nil
}

// handleReadyForQuery completes the in-flight query (if any) and moves to
// the state the tx-status byte names.
func (m *Machine) handleReadyForQuery(mm *message.ReadyForQuery) ([]byte, error) {
	if !m.openResolved {
		// ReadyForQuery during the handshake: connection is live.
		m.state = Idle
		m.resolveOpen(nil)
		return m.drainQueueIfIdle()
	}

	q := m.cur
	m.cur = nil

	switch mm.TxStatus {
	case types.TxIdle:
		m.state = Idle
		m.tx = nil
	case types.TxInBlock:
		m.state = ReadyInTransaction
	case types.TxInFailed:
		m.state = TransactionFailure
		if m.tx != nil {
			m.tx.failed = true
		}
	}

	if q != nil {
		if err := q.ReturningException(); err != nil {
			q.Fail(err)
		} else {
			q.Resolve()
		}
	}

	return m.drainQueueIfIdle()
}

func (m *Machine) drainQueueIfIdle() ([]byte, error) {
	switch m.state {
	case Idle, ReadyInTransaction:
		return m.dispatchNext()
	default:
		return nil, nil
	}
}

func concat(chunks ...[]byte) []byte {
	n := 0
	for _, c := range chunks {
		n += len(c)
	}
	out := make([]byte, 0, n)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
