// Package pgconfig loads YAML pool settings and hot-reloads them via
// fsnotify, the way JeelKantaria-db-bouncer's internal/config package does
// for its server-wide config file — scoped here to the runtime-tunable
// subset of one pgpool (spec.md §6): pool size is fixed at construction,
// but retry/heartbeat/acquire timeouts can change without a restart.
package pgconfig

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the pool's connection settings plus its runtime-tunable
// settings (MaxRetryInterval, HeartbeatInterval, AcquireTimeout).
type Config struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	Database         string        `yaml:"database"`
	User             string        `yaml:"user"`
	Password         string        `yaml:"password"`
	UseSSL           bool          `yaml:"use_ssl"`
	PoolSize         int           `yaml:"pool_size"`
	MaxRetryInterval time.Duration `yaml:"max_retry_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AcquireTimeout   time.Duration `yaml:"acquire_timeout"`
}

// Redacted returns a copy of c with the password masked, for logging.
func (c Config) Redacted() Config {
	r := c
	if r.Password != "" {
		r.Password = "***REDACTED***"
	}
	return r
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file, with ${VAR} environment
// substitution, applying defaults and validating required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 4
	}
	if cfg.MaxRetryInterval == 0 {
		cfg.MaxRetryInterval = 30 * time.Second
	}
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return fmt.Errorf("database is required")
	}
	if cfg.User == "" {
		return fmt.Errorf("user is required")
	}
	if cfg.PoolSize < 0 {
		return fmt.Errorf("pool_size must not be negative")
	}
	return nil
}

// Watcher watches a config file for changes and calls the callback with
// the newly loaded config, debounced against editors that write a file in
// several small writes.
type Watcher struct {
	path     string
	callback func(*Config)
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher starts watching path for changes.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching config file: %w", err)
	}

	cw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		stopCh:   make(chan struct{}),
	}

	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					cw.reload()
				})
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[pgconfig] watcher error: %v", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cfg, err := Load(cw.path)
	if err != nil {
		log.Printf("[pgconfig] hot-reload failed: %v", err)
		return
	}

	log.Printf("[pgconfig] configuration reloaded from %s", cw.path)
	cw.callback(cfg)
}

// Stop stops the config watcher.
func (cw *Watcher) Stop() error {
	close(cw.stopCh)
	return cw.watcher.Close()
}
