package pgconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/pgwire/client/internal/fsm"
	"github.com/pgwire/client/internal/wire/buffer"
	"github.com/pgwire/client/internal/wire/message"
	"github.com/pgwire/client/pgerr"
	"github.com/pgwire/client/pgquery"
	"github.com/pgwire/client/substitution"
)

// Conn is a single-use PostgreSQL connection. Once closed it cannot be
// reopened (spec.md §3).
//
// Grounded on JeelKantaria-db-bouncer's internal/proxy/postgres.go
// (PostgresHandler.Handle): the teacher dials a tenant backend and relays
// two sockets; this inverts the same "own the socket for one connection's
// whole lifetime" shape into a two-way client that drives internal/fsm
// instead of relaying bytes verbatim.
type Conn struct {
	netConn  net.Conn
	machine  *fsm.Machine
	framer   buffer.Framer
	cache    *pgquery.Cache
	relCache *relationNames
	log      *slog.Logger

	writeMu sync.Mutex

	openOnce sync.Once
	openErr  chan error

	notifyMu   sync.Mutex
	notifyCh   []chan Notification
	closedOnce sync.Once
	readErr    error
}

// Notification is one NOTIFY payload delivered asynchronously.
type Notification = fsm.Notification

// Connect dials host:port, performs the startup/auth handshake, and blocks
// until the connection reaches Idle or the handshake fails or times out.
func Connect(ctx context.Context, cfg Config, sub substitution.Substitutor) (*Conn, error) {
	if sub == nil {
		sub = substitution.Default{}
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(dialCtx, "tcp", cfg.addr())
	if err != nil {
		if dialCtx.Err() != nil {
			return nil, &pgerr.TimeoutError{Msg: "connecting: " + err.Error()}
		}
		return nil, fmt.Errorf("pgwire: connecting: %w", err)
	}

	netConn := raw
	if cfg.UseSSL {
		upgraded, err := negotiateTLS(netConn)
		if err != nil {
			netConn.Close()
			return nil, err
		}
		netConn = upgraded
	}

	c := &Conn{
		netConn:  netConn,
		cache:    pgquery.NewCache(),
		relCache: newRelationNames(),
		log:      slog.Default().With("component", "pgconn"),
		openErr:  make(chan error, 1),
	}
	c.machine = fsm.New(c.cache, sub, c.onOpen, c.onNotify)

	startupBytes, err := c.machine.Open(fsm.Credentials{
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		TimeZone: cfg.TimeZone,
	})
	if err != nil {
		netConn.Close()
		return nil, err
	}

	go c.readLoop()

	if err := c.write(startupBytes); err != nil {
		netConn.Close()
		return nil, err
	}

	select {
	case err := <-c.openErr:
		if err != nil {
			return nil, err
		}
		return c, nil
	case <-dialCtx.Done():
		c.Close()
		return nil, &pgerr.TimeoutError{Msg: "timed out trying to connect"}
	}
}

func negotiateTLS(conn net.Conn) (net.Conn, error) {
	var w buffer.Writer
	req, err := message.SSLRequest(&w)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(req); err != nil {
		return nil, &pgerr.ProtocolError{Msg: "sending SSL request", Err: err}
	}
	resp := make([]byte, 1)
	if _, err := conn.Read(resp); err != nil {
		return nil, &pgerr.ProtocolError{Msg: "reading SSL response", Err: err}
	}
	if resp[0] != 'S' {
		return nil, &pgerr.ProtocolError{Msg: "server declined SSL"}
	}
	// Accepting any server certificate by default is this library's
	// documented contract; callers wanting verification wrap Connect's
	// result at a higher layer.
	return tls.Client(conn, &tls.Config{InsecureSkipVerify: true}), nil
}

func (c *Conn) onOpen(err error) {
	c.openOnce.Do(func() {
		c.openErr <- err
	})
}

func (c *Conn) onNotify(n fsm.Notification) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for _, ch := range c.notifyCh {
		select {
		case ch <- Notification(n):
		default:
		}
	}
}

// Notifications registers and returns a channel of asynchronous NOTIFY
// payloads. The channel is never closed by Conn; it stops receiving once
// the connection closes.
func (c *Conn) Notifications() <-chan Notification {
	ch := make(chan Notification, 64)
	c.notifyMu.Lock()
	c.notifyCh = append(c.notifyCh, ch)
	c.notifyMu.Unlock()
	return ch
}

func (c *Conn) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.netConn.Write(b)
	if err != nil {
		return &pgerr.ProtocolError{Msg: "writing to socket", Err: err}
	}
	return nil
}

// readLoop owns the socket's read side for the connection's whole
// lifetime: frame bytes, parse one backend message at a time, advance the
// machine, write whatever it returns (spec.md §5: one write per response
// batch, one reader per connection).
func (c *Conn) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := c.netConn.Read(buf)
		if n > 0 {
			raws, ferr := c.framer.Push(buf[:n])
			for _, raw := range raws {
				if c.dispatchMessage(raw) {
					return
				}
			}
			if ferr != nil {
				c.fail(&pgerr.ProtocolError{Msg: "framing backend message", Err: ferr})
				return
			}
		}
		if err != nil {
			c.fail(&pgerr.ProtocolError{Msg: "reading from socket", Err: err})
			return
		}
	}
}

// dispatchMessage parses and handles one raw message, writing any
// resulting bytes. Returns true if the connection must now stop reading.
func (c *Conn) dispatchMessage(raw buffer.RawMessage) bool {
	msg, err := message.ParseBackend(raw)
	if err != nil {
		c.fail(err)
		return true
	}
	out, err := c.machine.HandleMessage(msg)
	if err != nil {
		c.fail(err)
		return true
	}
	if len(out) > 0 {
		if werr := c.write(out); werr != nil {
			c.fail(werr)
			return true
		}
	}
	return c.machine.State() == fsm.Closed
}

func (c *Conn) fail(err error) {
	c.readErr = err
	c.Close()
}

// Close cancels every pending query with an error and closes the socket.
// Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closedOnce.Do(func() {
		c.machine.Close()
		err = c.netConn.Close()
	})
	return err
}

// enqueue submits q to the machine and writes whatever it returns.
func (c *Conn) enqueue(q *pgquery.Query) {
	out, err := c.machine.Enqueue(q)
	if err != nil {
		q.Fail(err)
		return
	}
	if len(out) > 0 {
		if werr := c.write(out); werr != nil {
			q.Fail(werr)
		}
	}
}

// Execute runs sql via the simple-query path and returns the affected-row
// count (spec.md §4.5).
func (c *Conn) Execute(ctx context.Context, sql string, values map[string]any) (int64, error) {
	q := pgquery.NewQuery(sql, values, true, false)
	c.enqueue(q)
	res, err := waitCtx(ctx, q)
	return res.AffectedRows, err
}

// Query runs sql via the extended path and returns the decoded rows.
func (c *Conn) Query(ctx context.Context, sql string, values map[string]any, allowReuse bool) (pgquery.Result, error) {
	q := pgquery.NewQuery(sql, values, false, allowReuse)
	c.enqueue(q)
	return waitCtx(ctx, q)
}

func waitCtx(ctx context.Context, q *pgquery.Query) (pgquery.Result, error) {
	select {
	case <-q.Done():
		return q.Wait()
	case <-ctx.Done():
		return pgquery.Result{}, fmt.Errorf("pgwire: %w", ctx.Err())
	}
}
