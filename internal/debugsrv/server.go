// Package debugsrv is a small gorilla/mux HTTP server exposing one pool's
// status, health, and Prometheus metrics.
//
// Grounded on JeelKantaria-db-bouncer's internal/api/server.go (Server,
// Start/Stop, statusHandler/healthHandler/readyHandler, writeJSON/
// writeError helpers): trimmed from the teacher's multi-tenant REST CRUD
// API (tenant create/update/delete/pause/resume, the HTML dashboard) down
// to the read-only status/health surface a single-target client library
// needs — there is exactly one pool here, not a fleet of tenants to
// administer over HTTP.
package debugsrv

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgwire/client/internal/metrics"
	"github.com/pgwire/client/pgpool"
)

// Server exposes /status, /health, /ready, and /metrics for one pgpool.Pool.
type Server struct {
	pool       *pgpool.Pool
	metrics    *metrics.Collector
	httpServer *http.Server
	startTime  time.Time
}

// New creates a debug server for pool, optionally exporting metrics'
// registry at /metrics.
func New(pool *pgpool.Pool, m *metrics.Collector) *Server {
	return &Server{
		pool:      pool,
		metrics:   m,
		startTime: time.Now(),
	}
}

// Start begins serving on the given bind address (e.g. "127.0.0.1:8090").
// It returns once the listener is up; errors after that are logged.
func (s *Server) Start(addr string) error {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	log.Printf("[debugsrv] listening on %s", addr)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[debugsrv] server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := s.pool.Stats()
	uptime := time.Since(s.startTime).Seconds()

	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(uptime),
		"go_version":     runtime.Version(),
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(mem.Alloc) / 1024 / 1024,
		"pool": map[string]int{
			"idle":    stats.Idle,
			"active":  stats.Active,
			"waiting": stats.Waiting,
			"failed":  stats.Failed,
		},
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	healthy := stats.Idle+stats.Active > 0

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status": boolToStatus(healthy),
		"pool":   stats,
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	if stats.Idle+stats.Active > 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
