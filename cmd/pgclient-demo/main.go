// Command pgclient-demo opens a pool against a Postgres instance, runs a
// smoke-test query loop, and exposes pool status/metrics over HTTP until
// signaled to stop.
//
// Grounded on JeelKantaria-db-bouncer's cmd/dbbouncer/main.go: the same
// flag-parse, wire-components, start-servers, wait-for-signal,
// graceful-shutdown shape, trimmed from "start a multi-tenant proxy plus
// REST API plus health checker" down to "open one pool plus one debug
// server" since this binary demonstrates a client library, not a proxy.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pgwire/client/internal/debugsrv"
	"github.com/pgwire/client/internal/metrics"
	"github.com/pgwire/client/internal/pgconfig"
	"github.com/pgwire/client/pgconn"
	"github.com/pgwire/client/pgpool"
)

func main() {
	configPath := flag.String("config", "configs/pgclient.yaml", "path to configuration file")
	debugAddr := flag.String("debug-addr", "127.0.0.1:8090", "bind address for the debug/status/metrics HTTP server")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("pgclient-demo starting...")

	cfg, err := pgconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("configuration loaded from %s (pool_size=%d, host=%s)", *configPath, cfg.PoolSize, cfg.Host)

	m := metrics.New()

	pool, err := pgpool.Open(context.Background(), pgpool.Config{
		Size:              cfg.PoolSize,
		Conn:              connConfig(cfg),
		MaxRetryInterval:  cfg.MaxRetryInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		AcquireTimeout:    cfg.AcquireTimeout,
		Metrics:           m,
	})
	if err != nil {
		log.Fatalf("failed to open pool: %v", err)
	}

	debugServer := debugsrv.New(pool, m)
	if err := debugServer.Start(*debugAddr); err != nil {
		log.Fatalf("failed to start debug server: %v", err)
	}

	stopStats := startStatsLoop(pool, 5*time.Second)

	configWatcher, err := pgconfig.NewWatcher(*configPath, func(newCfg *pgconfig.Config) {
		pool.ApplySettings(newCfg.MaxRetryInterval, newCfg.HeartbeatInterval, newCfg.AcquireTimeout)
		log.Printf("configuration reloaded: max_retry_interval=%s heartbeat_interval=%s acquire_timeout=%s",
			newCfg.MaxRetryInterval, newCfg.HeartbeatInterval, newCfg.AcquireTimeout)
	})
	if err != nil {
		log.Printf("warning: config hot-reload not available: %v", err)
	}

	log.Printf("pgclient-demo ready - pool size %d, debug server on %s", cfg.PoolSize, *debugAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %s, shutting down...", sig)

	if configWatcher != nil {
		configWatcher.Stop()
	}
	close(stopStats)
	debugServer.Stop()
	pool.Close()

	log.Printf("pgclient-demo stopped")
}

func connConfig(cfg *pgconfig.Config) pgconn.Config {
	return pgconn.Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Database: cfg.Database,
		User:     cfg.User,
		Password: cfg.Password,
		UseSSL:   cfg.UseSSL,
	}
}

func startStatsLoop(pool *pgpool.Pool, interval time.Duration) chan struct{} {
	stop := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats := pool.Stats()
				log.Printf("pool stats: idle=%d active=%d waiting=%d failed=%d",
					stats.Idle, stats.Active, stats.Waiting, stats.Failed)
			case <-stop:
				return
			}
		}
	}()
	return stop
}
