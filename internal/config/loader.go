package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ParseEnv reads deployment settings from the environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// Loader reads the YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					cfg, err := l.load()
					if err != nil {
						// Keep running with the old config.
						continue
					}
					l.mu.Lock()
					l.current = cfg
					callbacks := make([]func(*Config), len(l.onChange))
					copy(callbacks, l.onChange)
					l.mu.Unlock()
					for _, fn := range callbacks {
						fn(cfg)
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Actors.PersonIdleS == 0 {
		cfg.Actors.PersonIdleS = 300 // 5 minutes
	}
	if cfg.Actors.GateIdleS == 0 {
		cfg.Actors.GateIdleS = 1800 // 30 minutes
	}
	if cfg.Actors.AccIdleS == 0 {
		cfg.Actors.AccIdleS = 1800
	}
	if cfg.Actors.UnusualOpenS == 0 {
		cfg.Actors.UnusualOpenS = 120
	}
	if cfg.Actors.ShutdownTimeoutS == 0 {
		cfg.Actors.ShutdownTimeoutS = 10
	}
	if cfg.Incidents.DedupWindowS == 0 {
		cfg.Incidents.DedupWindowS = 300
	}
	if cfg.Incidents.EscalationAfterS == 0 {
		cfg.Incidents.EscalationAfterS = 300
	}
	if cfg.Incidents.SweepIntervalS == 0 {
		cfg.Incidents.SweepIntervalS = 60
	}
	if cfg.Router.PersistWorkers == 0 {
		cfg.Router.PersistWorkers = 8
	}
	if cfg.Router.QueueDepth == 0 {
		cfg.Router.QueueDepth = 10000
	}
}
