// Package pgpool implements a fixed-size pool of pgconn connections with
// exponential-backoff reconnect and an optional heartbeat (spec.md §4.6).
//
// Grounded on JeelKantaria-db-bouncer's internal/pool/pool.go
// (TenantPool/Manager): the sync.Cond-based Acquire/Return/wait-queue shape
// is carried over directly. Generalized from "N tenants, each with its own
// idle-timeout-reaped pool of raw sockets" down to "one pool, N pgconn.Conn
// instances, each individually replaced with exponential backoff on
// failure" per spec.md §4.6 — this library has no tenants and no
// connection-mode switch, just one target database.
package pgpool

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/pgwire/client/internal/metrics"
	"github.com/pgwire/client/pgconn"
	"github.com/pgwire/client/pgerr"
	"github.com/pgwire/client/pgquery"
	"github.com/pgwire/client/substitution"
)

// Config are the pool constructor parameters (spec.md §4.6, §6).
type Config struct {
	Size             int
	Conn             pgconn.Config
	Substitutor      substitution.Substitutor
	MaxRetryInterval time.Duration

	// HeartbeatInterval, if non-zero, periodically runs SELECT 1 against
	// each idle connection and replaces it on failure.
	HeartbeatInterval time.Duration

	// AcquireTimeout bounds how long Execute/Query/Transaction wait for an
	// idle connection before giving up. Zero means wait indefinitely,
	// bounded only by the caller's context.
	AcquireTimeout time.Duration

	// Metrics, if non-nil, receives pool occupancy and health observations.
	Metrics *metrics.Collector
}

// Handle is a borrowed connection; callers must call Release exactly once.
type Handle struct {
	pool *Pool
	conn *pgconn.Conn
}

// Conn exposes the underlying connection for issuing queries.
func (h *Handle) Conn() *pgconn.Conn { return h.conn }

// Release returns the connection to the pool.
func (h *Handle) Release() { h.pool.release(h.conn) }

// Transaction acquires a connection, runs block inside BEGIN/COMMIT (or
// ROLLBACK on error or an explicit *pgerr.Rollback), releases the
// connection, and records the outcome and duration via Config.Metrics.
func (p *Pool) Transaction(ctx context.Context, block func(*pgconn.Tx) (any, error)) (any, error) {
	h, err := p.Acquire(ctx, p.acquireTimeout())
	if err != nil {
		return nil, err
	}
	defer h.Release()

	start := time.Now()
	result, err := h.conn.Transaction(ctx, block)

	if p.cfg.Metrics != nil {
		outcome := "commit"
		switch {
		case err == nil:
			outcome = "commit"
		default:
			if _, ok := err.(*pgerr.Rollback); ok {
				outcome = "rollback"
			} else {
				outcome = "error"
			}
		}
		p.cfg.Metrics.TransactionCompleted(outcome, time.Since(start))
	}
	return result, err
}

// Execute acquires a connection, runs sql via the simple-query path, and
// releases the connection, recording query latency via Config.Metrics.
func (p *Pool) Execute(ctx context.Context, sql string, values map[string]any) (int64, error) {
	h, err := p.Acquire(ctx, p.acquireTimeout())
	if err != nil {
		return 0, err
	}
	defer h.Release()

	start := time.Now()
	n, err := h.conn.Execute(ctx, sql, values)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.QueryDuration("simple", time.Since(start))
	}
	return n, err
}

// Query acquires a connection, runs sql via the extended path, and
// releases the connection, recording query latency via Config.Metrics.
func (p *Pool) Query(ctx context.Context, sql string, values map[string]any, allowReuse bool) (pgquery.Result, error) {
	h, err := p.Acquire(ctx, p.acquireTimeout())
	if err != nil {
		return pgquery.Result{}, err
	}
	defer h.Release()

	start := time.Now()
	res, err := h.conn.Query(ctx, sql, values, allowReuse)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.QueryDuration("extended", time.Since(start))
	}
	return res, err
}

type member struct {
	conn    *pgconn.Conn
	pending int // approximate queue depth, used to pick the least-loaded idle conn
}

// Pool manages a fixed-size set of live pgconn connections.
type Pool struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	idle    []*member
	active  map[*pgconn.Conn]*member
	waiting int

	failed int // accumulates while replacement dials keep failing
	closed bool
	stopCh chan struct{}

	heartbeatReset chan struct{}

	drainTimeout      time.Duration
	drainPollInterval time.Duration
}

// Open creates Size connections concurrently; each that opens successfully
// joins the live set, failures increment the backoff counter and trigger a
// replacement attempt (spec.md §4.6).
func Open(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.MaxRetryInterval <= 0 {
		cfg.MaxRetryInterval = 30 * time.Second
	}
	p := &Pool{
		cfg:               cfg,
		log:               slog.Default().With("component", "pgpool"),
		active:            make(map[*pgconn.Conn]*member),
		stopCh:            make(chan struct{}),
		heartbeatReset:    make(chan struct{}),
		drainTimeout:      30 * time.Second,
		drainPollInterval: 100 * time.Millisecond,
	}
	p.cond = sync.NewCond(&p.mu)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := pgconn.Connect(ctx, cfg.Conn, cfg.Substitutor)
			p.mu.Lock()
			defer p.mu.Unlock()
			if err != nil {
				p.log.Warn("initial connect failed", "err", err)
				p.failed++
				if p.cfg.Metrics != nil {
					p.cfg.Metrics.PoolConnectFailure()
				}
				go p.reconnectAfter(backoff(p.failed, p.cfg.Size, p.cfg.MaxRetryInterval))
				return
			}
			p.idle = append(p.idle, &member{conn: conn})
		}()
	}
	wg.Wait()

	go p.heartbeatLoop()

	return p, nil
}

func (p *Pool) acquireTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.AcquireTimeout
}

// ApplySettings retunes the pool's reconnect backoff ceiling, heartbeat
// interval, and default acquire timeout in place, without tearing down or
// reopening any connection. Safe to call concurrently with Acquire/Release;
// a zero maxRetryInterval leaves the current ceiling unchanged, a zero
// heartbeatInterval pauses the heartbeat, and a zero acquireTimeout means
// wait indefinitely (bounded only by the caller's context).
func (p *Pool) ApplySettings(maxRetryInterval, heartbeatInterval, acquireTimeout time.Duration) {
	p.mu.Lock()
	if maxRetryInterval > 0 {
		p.cfg.MaxRetryInterval = maxRetryInterval
	}
	p.cfg.HeartbeatInterval = heartbeatInterval
	p.cfg.AcquireTimeout = acquireTimeout
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return
	}
	select {
	case p.heartbeatReset <- struct{}{}:
	case <-p.stopCh:
	}
}

// Acquire returns the least-loaded available connection, or waits for one
// up to timeout (zero means wait indefinitely, bounded by ctx).
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Handle, error) {
	start := time.Now()
	waited := false
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	p.mu.Lock()
	for {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			return nil, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			return nil, pgerr.ErrPoolClosed
		}

		if len(p.idle) > 0 {
			m := pickLeastLoaded(p.idle)
			p.removeIdle(m)
			p.active[m.conn] = m
			p.mu.Unlock()
			if p.cfg.Metrics != nil && waited {
				p.cfg.Metrics.AcquireDuration(time.Since(start))
			}
			return &Handle{pool: p, conn: m.conn}, nil
		}

		if !waited {
			waited = true
			if p.cfg.Metrics != nil {
				p.cfg.Metrics.PoolExhausted()
			}
		}

		if deadline.IsZero() {
			p.waiting++
			p.cond.Wait()
			p.waiting--
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, &pgerr.TimeoutError{Msg: "acquire: pool exhausted"}
		}
		timer := time.AfterFunc(remaining, func() { p.cond.Broadcast() })
		p.waiting++
		p.cond.Wait()
		p.waiting--
		timer.Stop()

		if time.Now().After(deadline) {
			p.mu.Unlock()
			return nil, &pgerr.TimeoutError{Msg: "acquire: pool exhausted"}
		}
	}
}

func pickLeastLoaded(idle []*member) *member {
	best := idle[0]
	for _, m := range idle[1:] {
		if m.pending < best.pending {
			best = m
		}
	}
	return best
}

func (p *Pool) removeIdle(target *member) {
	for i, m := range p.idle {
		if m == target {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}

// release returns a connection to the idle set, or starts a replacement if
// the connection is dead.
func (p *Pool) release(conn *pgconn.Conn) {
	p.mu.Lock()
	m, ok := p.active[conn]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.active, conn)

	if p.closed {
		p.mu.Unlock()
		conn.Close()
		return
	}

	p.idle = append(p.idle, m)
	p.cond.Signal()
	p.mu.Unlock()
}

// Replace discards conn (presumed dead — e.g. a heartbeat failure or a
// caller-observed I/O error) and schedules a replacement after
// min(2^(failed/Size) ms, MaxRetryInterval), per spec.md §4.6.
func (p *Pool) Replace(conn *pgconn.Conn) {
	p.mu.Lock()
	delete(p.active, conn)
	p.removeIdleByConn(conn)
	p.failed++
	failed := p.failed
	closed := p.closed
	size := p.cfg.Size
	maxRetryInterval := p.cfg.MaxRetryInterval
	p.mu.Unlock()

	conn.Close()
	if closed {
		return
	}
	go p.reconnectAfter(backoff(failed, size, maxRetryInterval))
}

func (p *Pool) removeIdleByConn(conn *pgconn.Conn) {
	for i, m := range p.idle {
		if m.conn == conn {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}

func backoff(failed, size int, max time.Duration) time.Duration {
	if size <= 0 {
		size = 1
	}
	ms := math.Pow(2, float64(failed)/float64(size))
	if ms >= float64(math.MaxInt64/int64(time.Millisecond)) {
		return max
	}
	d := time.Duration(ms) * time.Millisecond
	if d > max {
		return max
	}
	return d
}

func (p *Pool) reconnectAfter(d time.Duration) {
	select {
	case <-time.After(d):
	case <-p.stopCh:
		return
	}

	conn, err := pgconn.Connect(context.Background(), p.cfg.Conn, p.cfg.Substitutor)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		p.log.Warn("replacement connect failed", "err", err)
		p.failed++
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.PoolConnectFailure()
		}
		go p.reconnectAfter(backoff(p.failed, p.cfg.Size, p.cfg.MaxRetryInterval))
		return
	}
	p.failed = 0
	p.idle = append(p.idle, &member{conn: conn})
	p.cond.Signal()
}

// heartbeatLoop periodically runs SELECT 1 against each idle connection,
// replacing any that fail. Runs for the pool's whole lifetime, even when
// disabled (HeartbeatInterval == 0), so ApplySettings can turn it on later
// without restarting the pool.
func (p *Pool) heartbeatLoop() {
	for {
		p.mu.Lock()
		interval := p.cfg.HeartbeatInterval
		p.mu.Unlock()

		if interval <= 0 {
			select {
			case <-p.heartbeatReset:
				continue
			case <-p.stopCh:
				return
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			p.checkIdleHealth()
		case <-p.heartbeatReset:
			timer.Stop()
		case <-p.stopCh:
			timer.Stop()
			return
		}
	}
}

func (p *Pool) checkIdleHealth() {
	p.mu.Lock()
	snapshot := make([]*member, len(p.idle))
	copy(snapshot, p.idle)
	p.mu.Unlock()

	for _, m := range snapshot {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := m.conn.Execute(ctx, "SELECT 1", nil)
		cancel()
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.HeartbeatCompleted(time.Since(start), err == nil)
		}
		if err != nil {
			p.log.Warn("heartbeat failed, replacing connection", "err", err)
			p.Replace(m.conn)
		}
	}
}

// Close marks the pool closed (every subsequent Acquire fails with
// ErrPoolClosed), closes idle connections immediately, then waits up to
// drainTimeout for active connections to be Released before force-closing
// whatever is still outstanding, exactly as the teacher's
// TenantPool.Drain does (poll every drainPollInterval, force-close and
// warn past the deadline) — spec.md §4.6's "wait for all busy connections"
// before the pool is torn down.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.cond.Broadcast()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, m := range idle {
		if err := m.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	p.waitForActiveDrain()

	p.mu.Lock()
	active := p.active
	p.active = make(map[*pgconn.Conn]*member)
	p.mu.Unlock()

	for conn := range active {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// waitForActiveDrain blocks until every active connection has been
// released (release() closes it immediately once the pool is marked
// closed) or drainTimeout elapses, whichever comes first.
func (p *Pool) waitForActiveDrain() {
	p.mu.Lock()
	n := len(p.active)
	p.mu.Unlock()
	if n == 0 {
		return
	}

	p.log.Info("draining active connections", "count", n)
	deadline := time.After(p.drainTimeout)
	ticker := time.NewTicker(p.drainPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			empty := len(p.active) == 0
			p.mu.Unlock()
			if empty {
				return
			}
		case <-deadline:
			p.mu.Lock()
			remaining := len(p.active)
			p.mu.Unlock()
			p.log.Warn("force-closing active connections after drain timeout", "remaining", remaining)
			return
		}
	}
}

// Stats reports point-in-time pool occupancy.
type Stats struct {
	Idle    int
	Active  int
	Waiting int
	Failed  int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	s := Stats{Idle: len(p.idle), Active: len(p.active), Waiting: p.waiting, Failed: p.failed}
	p.mu.Unlock()
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.UpdatePoolStats(s.Active, s.Idle, s.Waiting)
	}
	return s
}
