// Package config implements layered YAML+env configuration with optional
// fsnotify hot-reload for runtime-tunable knobs (retry budgets, quality
// thresholds, buffer minimums), per spec §10.3. Grounded on the teacher's
// engine/config/unified_config.go (struct-of-policies shape, Validate,
// ApplyDefaults) and engine/internal/runtime/runtime.go's HotReloadSystem
// (fsnotify.Watcher over the config file's directory, debounced reload on
// Write events). Structural settings (stage registry wiring) are load-once;
// only the fields under Runtime are eligible for hot-reload.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Runtime holds the knobs safe to change without restarting the process.
type Runtime struct {
	MaxRetries        int     `yaml:"maxRetries"`
	BaseDelayMs       int     `yaml:"baseDelayMs"`
	MaxDelayMs        int     `yaml:"maxDelayMs"`
	MaxConcurrency    int     `yaml:"maxConcurrency"`
	BufferMinimum     int     `yaml:"bufferMinimum"`
	QualityStrictness float64 `yaml:"qualityStrictness"`
}

// Config is the full layered configuration (spec §10.3).
type Config struct {
	Environment string  `yaml:"environment"`
	LogLevel    string  `yaml:"logLevel"`
	MetricsPort int     `yaml:"metricsPort"`
	HTTPPort    int     `yaml:"httpPort"`
	MinTokenLen int     `yaml:"minTokenLen"`
	Runtime     Runtime `yaml:"runtime"`
}

// Default returns sane defaults (spec §4.2 retry defaults, §10.3).
func Default() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		MetricsPort: 9090,
		HTTPPort:    8080,
		MinTokenLen: 20,
		Runtime: Runtime{
			MaxRetries:        3,
			BaseDelayMs:       1000,
			MaxDelayMs:        30000,
			MaxConcurrency:    4,
			BufferMinimum:     3,
			QualityStrictness: 1.0,
		},
	}
}

// Load reads path as YAML over the defaults, then applies environment
// overrides, then validates. A missing file is not an error — defaults (and
// any env overrides) apply (teacher's RuntimeConfigManager.LoadConfiguration
// treats a missing file the same way).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides layers NEXUS_-prefixed environment variables over cfg.
// lookup is injectable so tests don't touch the real environment.
func applyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("NEXUS_ENVIRONMENT"); ok {
		cfg.Environment = v
	}
	if v, ok := lookup("NEXUS_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("NEXUS_METRICS_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetricsPort = n
		}
	}
	if v, ok := lookup("NEXUS_HTTP_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	if v, ok := lookup("NEXUS_MIN_TOKEN_LEN"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinTokenLen = n
		}
	}
	if v, ok := lookup("NEXUS_MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.MaxRetries = n
		}
	}
	if v, ok := lookup("NEXUS_BUFFER_MINIMUM"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Runtime.BufferMinimum = n
		}
	}
}

// Validate rejects structurally impossible configuration.
func (c Config) Validate() error {
	if c.Runtime.MaxRetries < 0 {
		return fmt.Errorf("config: runtime.maxRetries must be >= 0, got %d", c.Runtime.MaxRetries)
	}
	if c.Runtime.BaseDelayMs <= 0 {
		return fmt.Errorf("config: runtime.baseDelayMs must be > 0, got %d", c.Runtime.BaseDelayMs)
	}
	if c.Runtime.MaxDelayMs < c.Runtime.BaseDelayMs {
		return fmt.Errorf("config: runtime.maxDelayMs (%d) must be >= baseDelayMs (%d)", c.Runtime.MaxDelayMs, c.Runtime.BaseDelayMs)
	}
	if c.Runtime.MaxConcurrency <= 0 {
		return fmt.Errorf("config: runtime.maxConcurrency must be > 0, got %d", c.Runtime.MaxConcurrency)
	}
	if c.Runtime.BufferMinimum < 0 {
		return fmt.Errorf("config: runtime.bufferMinimum must be >= 0, got %d", c.Runtime.BufferMinimum)
	}
	return nil
}

// Watcher reloads Runtime from path whenever the file changes on disk,
// publishing each successfully-parsed-and-validated update on Changes().
// Grounded on the teacher's HotReloadSystem: an fsnotify.Watcher on the
// file's parent directory, filtered to Write events for the exact path.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	current Runtime

	changes chan Runtime
	errs    chan error
}

// NewWatcher constructs a Watcher seeded with initial and begins watching
// path's parent directory. Call Run to start the event loop.
func NewWatcher(path string, initial Runtime) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("config: watch dir %s: %w", dir, err)
	}
	return &Watcher{
		path:    path,
		watcher: w,
		current: initial,
		changes: make(chan Runtime, 8),
		errs:    make(chan error, 8),
	}, nil
}

// Current returns the most recently applied Runtime snapshot.
func (w *Watcher) Current() Runtime {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Changes streams every successfully applied reload.
func (w *Watcher) Changes() <-chan Runtime { return w.changes }

// Errors streams read/parse/validate failures encountered while watching;
// a failed reload leaves Current() unchanged.
func (w *Watcher) Errors() <-chan error { return w.errs }

// Run blocks the event loop until ctx is cancelled, reloading Runtime from
// w.path on every Write event that targets it.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.changes)
	defer close(w.errs)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path || ev.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			runtime, err := w.reload()
			if err != nil {
				select {
				case w.errs <- err:
				default:
				}
				continue
			}
			w.mu.Lock()
			w.current = runtime
			w.mu.Unlock()
			select {
			case w.changes <- runtime:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errs <- err:
			default:
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close stops watching and releases the underlying fsnotify.Watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) reload() (Runtime, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return Runtime{}, fmt.Errorf("config: reload read %s: %w", w.path, err)
	}
	var cfg Config
	cfg.Runtime = w.Current()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Runtime{}, fmt.Errorf("config: reload parse %s: %w", w.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Runtime{}, err
	}
	return cfg.Runtime, nil
}
