package pgconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
host: localhost
port: 5432
database: testdb
user: testuser
password: testpass
pool_size: 8
max_retry_interval: 15s
heartbeat_interval: 30s
acquire_timeout: 5s
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.PoolSize != 8 {
		t.Errorf("expected pool_size 8, got %d", cfg.PoolSize)
	}
	if cfg.MaxRetryInterval != 15*time.Second {
		t.Errorf("expected max_retry_interval 15s, got %v", cfg.MaxRetryInterval)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("expected heartbeat_interval 30s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.Database != "testdb" {
		t.Errorf("expected database testdb, got %s", cfg.Database)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	os.Setenv("TEST_PG_PASSWORD", "secret123")
	defer os.Unsetenv("TEST_PG_PASSWORD")

	yaml := `
host: localhost
database: testdb
user: testuser
password: ${TEST_PG_PASSWORD}
`
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Password != "secret123" {
		t.Errorf("expected password secret123, got %s", cfg.Password)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing host", "database: testdb\nuser: u\n"},
		{"missing database", "host: localhost\nuser: u\n"},
		{"missing user", "host: localhost\ndatabase: testdb\n"},
		{"negative pool size", "host: localhost\ndatabase: testdb\nuser: u\npool_size: -1\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeTemp(t, c.yaml)
			if _, err := Load(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	yaml := "host: localhost\ndatabase: testdb\nuser: u\n"
	path := writeTemp(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 5432 {
		t.Errorf("expected default port 5432, got %d", cfg.Port)
	}
	if cfg.PoolSize != 4 {
		t.Errorf("expected default pool_size 4, got %d", cfg.PoolSize)
	}
	if cfg.MaxRetryInterval != 30*time.Second {
		t.Errorf("expected default max_retry_interval 30s, got %v", cfg.MaxRetryInterval)
	}
	if cfg.AcquireTimeout != 10*time.Second {
		t.Errorf("expected default acquire_timeout 10s, got %v", cfg.AcquireTimeout)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{Password: "supersecret"}
	r := cfg.Redacted()
	if r.Password != "***REDACTED***" {
		t.Errorf("expected password to be redacted, got %q", r.Password)
	}
	if cfg.Password != "supersecret" {
		t.Error("Redacted must not mutate the receiver")
	}
}

func TestWatcherReload(t *testing.T) {
	path := writeTemp(t, "host: localhost\ndatabase: testdb\nuser: u\npool_size: 4\n")

	reloaded := make(chan *Config, 1)
	w, err := NewWatcher(path, func(cfg *Config) {
		reloaded <- cfg
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("host: localhost\ndatabase: testdb\nuser: u\npool_size: 9\n"), 0644); err != nil {
		t.Fatalf("writing updated config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.PoolSize != 9 {
			t.Errorf("expected reloaded pool_size 9, got %d", cfg.PoolSize)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload callback")
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
