package fsm

import (
	"fmt"

	"github.com/pgwire/client/internal/wire/buffer"
	"github.com/pgwire/client/internal/wire/codec"
	"github.com/pgwire/client/internal/wire/message"
	"github.com/pgwire/client/internal/wire/types"
	"github.com/pgwire/client/pgerr"
	"github.com/pgwire/client/pgquery"
	"github.com/pgwire/client/substitution"
)

// Credentials configures one handshake.
type Credentials struct {
	User     string
	Password string
	Database string
	TimeZone string
}

// Notification is a NOTIFY payload delivered asynchronously, outside of any
// query's result (spec.md §4.5).
type Notification struct {
	ProcessID uint32
	Channel   string
	Payload   string
}

// txState tracks one open transaction's own query FIFO, routed separately
// from the connection-level queue (spec.md §4.4).
type txState struct {
	id       int64
	queue    []*pgquery.Query
	failed   bool
	finisher *pgquery.Query // the internal BEGIN/COMMIT/ROLLBACK bookkeeping query, if any
}

// Machine is the per-connection cooperative state machine. It owns no
// socket: callers feed it parsed backend messages and caller-initiated
// enqueues, and it returns bytes to write. Exactly one query is in flight
// at a time (spec.md §3, §5).
//
// Grounded on JeelKantaria-db-bouncer's authenticatePG message-dispatch
// loop (internal/pool/pool.go) and scramSHA256Auth (internal/pool/scram.go),
// generalized from a blocking read loop into an event-driven Handle call so
// a single connection can multiplex socket I/O with caller enqueues.
type Machine struct {
	state State
	w     buffer.Writer

	cache *pgquery.Cache
	sub   substitution.Substitutor

	creds    Credentials
	settings map[string]string
	pid      uint32
	secret   uint32

	salt  [4]byte
	scram *scramExchange

	queue []*pgquery.Query
	cur   *pgquery.Query

	curStatementName string
	curIsNewParse    bool
	curTx            *txState

	tx       *txState
	nextTxID int64

	onOpen   func(error)
	onNotify func(Notification)

	openResolved bool
	closed       bool
}

// New builds a fresh Machine in the Closed state. onOpen is invoked exactly
// once when the handshake resolves (nil error on success); onNotify is
// invoked for every NotificationResponse.
func New(cache *pgquery.Cache, sub substitution.Substitutor, onOpen func(error), onNotify func(Notification)) *Machine {
	return &Machine{
		state:    Closed,
		cache:    cache,
		sub:      sub,
		settings: make(map[string]string),
		onOpen:   onOpen,
		onNotify: onNotify,
	}
}

// State returns the current state (for tests and diagnostics).
func (m *Machine) State() State { return m.state }

// Open transitions Closed -> SocketConnected and returns the startup
// message to write. Calling Open twice is a caller bug; the second call
// returns ErrReopenClosed.
func (m *Machine) Open(creds Credentials) ([]byte, error) {
	if m.state != Closed || m.closed {
		return nil, pgerr.ErrReopenClosed
	}
	m.creds = creds
	m.state = SocketConnected

	tz := creds.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	b, err := message.Startup(&m.w, message.StartupParams{
		User:     creds.User,
		Database: creds.Database,
		Extra:    map[string]string{"TimeZone": tz},
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Enqueue adds q to the appropriate FIFO (the transaction's if q.Tx is set,
// else the connection's) and, if the connection is idle, dispatches it
// immediately, returning bytes to write.
func (m *Machine) Enqueue(q *pgquery.Query) ([]byte, error) {
	if m.closed {
		q.Fail(pgerr.ErrConnectionClosed)
		return nil, nil
	}

	inCurrentTx := q.Tx != nil && m.tx != nil && q.Tx.ID == m.tx.id

	if inCurrentTx && m.tx.failed && !q.ControlStatement {
		// Invariant: queries enqueued after a transaction failure are
		// discarded, not executed (spec.md §4.4).
		q.Fail(pgerr.ErrCancelled)
		return nil, nil
	}

	if inCurrentTx {
		m.tx.queue = append(m.tx.queue, q)
	} else {
		m.queue = append(m.queue, q)
	}

	if m.state == TransactionFailure && inCurrentTx {
		// "next awake returns to ReadyInTransaction" (spec.md §4.4).
		m.state = ReadyInTransaction
	}

	switch m.state {
	case Idle, ReadyInTransaction:
		return m.dispatchNext()
	default:
		return nil, nil
	}
}

// Close cancels every queued and in-flight query with ErrCancelled and
// marks the connection permanently closed. Idempotent.
func (m *Machine) Close() {
	if m.closed {
		return
	}
	m.closed = true
	m.state = Closed

	if m.cur != nil {
		m.cur.Fail(pgerr.ErrCancelled)
		m.cur = nil
	}
	for _, q := range m.queue {
		q.Fail(pgerr.ErrCancelled)
	}
	m.queue = nil
	if m.tx != nil {
		for _, q := range m.tx.queue {
			q.Fail(pgerr.ErrCancelled)
		}
		m.tx = nil
	}
	if !m.openResolved && m.onOpen != nil {
		m.openResolved = true
		m.onOpen(pgerr.ErrCancelled)
	}
}

// resolveOpen completes the handshake exactly once.
func (m *Machine) resolveOpen(err error) {
	if m.openResolved {
		return
	}
	m.openResolved = true
	if m.onOpen != nil {
		m.onOpen(err)
	}
}

// HandleMessage advances the machine on one parsed backend message and
// returns bytes to write, if any. A non-nil error means the connection
// must be closed by the caller after observing it.
func (m *Machine) HandleMessage(msg message.Backend) ([]byte, error) {
	switch mm := msg.(type) {
	case *message.Authentication:
		return m.handleAuth(mm)
	case *message.ParameterStatus:
		m.settings[mm.Name] = mm.Value
		return nil, nil
	case *message.BackendKeyData:
		m.pid, m.secret = mm.ProcessID, mm.SecretKey
		return nil, nil
	case *message.ErrorResponse:
		return m.handleErrorResponse(mm)
	case *message.NoticeResponse:
		return nil, nil
	case *message.NotificationResponse:
		if m.onNotify != nil {
			m.onNotify(Notification{ProcessID: mm.ProcessID, Channel: mm.Channel, Payload: mm.Payload})
		}
		return nil, nil
	case *message.ParseComplete:
		return nil, nil
	case *message.ParameterDescription:
		return m.handleParameterDescription(mm)
	case *message.BindComplete:
		return nil, nil
	case *message.RowDescription:
		if m.cur != nil {
			m.cur.OnRowDescription(mm.Fields)
		}
		return nil, nil
	case *message.DataRow:
		return nil, m.handleDataRow(mm)
	case *message.CommandComplete:
		if m.cur != nil {
			m.cur.OnCommandComplete(mm.AffectedRows)
		}
		return nil, nil
	case *message.NoData, *message.EmptyQueryResponse, *message.CloseComplete, *message.PortalSuspended:
		return nil, nil
	case *message.ReadyForQuery:
		return m.handleReadyForQuery(mm)
	case *message.Unknown:
		return nil, nil
	default:
		return nil, fmt.Errorf("fsm: unrecognized backend message %T", msg)
	}
}

func (m *Machine) handleDataRow(mm *message.DataRow) error {
	if m.cur == nil {
		return nil
	}
	values := make([]any, len(mm.Columns))
	fields := m.cur.FieldsSnapshot()
	for i, raw := range mm.Columns {
		if raw == nil {
			values[i] = nil
			continue
		}
		oid := types.OIDText
		if i < len(fields) {
			oid = fields[i].TypeOID
		}
		v, err := codec.DecodeBinary(oid, raw)
		if err != nil {
			return err
		}
		values[i] = v
	}
	m.cur.OnDataRow(values)
	return nil
}
