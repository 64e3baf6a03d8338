// Package metrics adapts the teacher's per-tenant Prometheus collector to a
// single-target pgpool: no tenant/db_type labels (there is exactly one
// target database per pool), plus query/transaction histograms this
// client's FSM can actually observe.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds every Prometheus metric this client produces.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive  prometheus.Gauge
	connectionsIdle    prometheus.Gauge
	connectionsWaiting prometheus.Gauge
	poolFailures       prometheus.Counter
	poolExhausted      prometheus.Counter

	queryDuration       *prometheus.HistogramVec
	transactionsTotal   *prometheus.CounterVec
	transactionDuration prometheus.Histogram
	acquireDuration     prometheus.Histogram

	heartbeatDuration prometheus.Histogram
	heartbeatErrors   prometheus.Counter
}

// New creates and registers every metric on an independent registry. Safe
// to call more than once (e.g. in tests, or once per pool instance).
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_connections_active",
			Help: "Number of connections currently checked out of the pool",
		}),
		connectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_connections_idle",
			Help: "Number of connections currently idle in the pool",
		}),
		connectionsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_connections_waiting",
			Help: "Number of goroutines blocked in Acquire",
		}),
		poolFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgwire_pool_connect_failures_total",
			Help: "Total failed dial/handshake attempts, initial or replacement",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgwire_pool_exhausted_total",
			Help: "Total times Acquire had to wait because no connection was idle",
		}),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgwire_query_duration_seconds",
				Help:    "Duration from dispatch to resolution for one query",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"path"}, // "simple" or "extended"
		),
		transactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_transactions_total",
				Help: "Total completed transactions by outcome",
			},
			[]string{"outcome"}, // "commit", "rollback", "error"
		),
		transactionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgwire_transaction_duration_seconds",
			Help:    "Duration from BEGIN to COMMIT/ROLLBACK",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgwire_acquire_duration_seconds",
			Help:    "Time spent waiting inside Pool.Acquire",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		heartbeatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgwire_heartbeat_duration_seconds",
			Help:    "Duration of the periodic SELECT 1 health check",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		heartbeatErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgwire_heartbeat_errors_total",
			Help: "Total heartbeat failures that triggered a connection replacement",
		}),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsIdle,
		c.connectionsWaiting,
		c.poolFailures,
		c.poolExhausted,
		c.queryDuration,
		c.transactionsTotal,
		c.transactionDuration,
		c.acquireDuration,
		c.heartbeatDuration,
		c.heartbeatErrors,
	)

	return c
}

// UpdatePoolStats sets the pool occupancy gauges from a pgpool.Stats snapshot.
func (c *Collector) UpdatePoolStats(active, idle, waiting int) {
	c.connectionsActive.Set(float64(active))
	c.connectionsIdle.Set(float64(idle))
	c.connectionsWaiting.Set(float64(waiting))
}

// PoolConnectFailure increments the connect/replacement failure counter.
func (c *Collector) PoolConnectFailure() { c.poolFailures.Inc() }

// PoolExhausted increments the Acquire-had-to-wait counter.
func (c *Collector) PoolExhausted() { c.poolExhausted.Inc() }

// QueryDuration observes one query's dispatch-to-resolution latency.
func (c *Collector) QueryDuration(path string, d time.Duration) {
	c.queryDuration.WithLabelValues(path).Observe(d.Seconds())
}

// TransactionCompleted records one transaction's outcome and duration.
func (c *Collector) TransactionCompleted(outcome string, d time.Duration) {
	c.transactionsTotal.WithLabelValues(outcome).Inc()
	c.transactionDuration.Observe(d.Seconds())
}

// AcquireDuration observes time spent waiting inside Pool.Acquire.
func (c *Collector) AcquireDuration(d time.Duration) {
	c.acquireDuration.Observe(d.Seconds())
}

// HeartbeatCompleted records a heartbeat probe's duration and outcome.
func (c *Collector) HeartbeatCompleted(d time.Duration, healthy bool) {
	c.heartbeatDuration.Observe(d.Seconds())
	if !healthy {
		c.heartbeatErrors.Inc()
	}
}
