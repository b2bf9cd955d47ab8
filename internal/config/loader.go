package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads config from disk and hands out the current snapshot. Reload
// and the fsnotify watcher replace the snapshot atomically, so validation
// rules can change without restarting the service.
type Loader struct {
	mu     sync.RWMutex
	path   string
	cfg    *Config
	logger *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewLoader creates a Loader holding the default config until Load is
// called.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		cfg:    DefaultConfig(),
		logger: logger.With("component", "config.Loader"),
	}
}

// Load reads the YAML file at path over the defaults and remembers the path
// for Reload.
func (l *Loader) Load(path string) error {
	cfg, err := readFile(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.path = path
	l.cfg = cfg
	l.mu.Unlock()

	l.logger.Info("config loaded", "path", path)
	return nil
}

// Get returns the current config snapshot. Callers must not mutate it.
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Reload re-reads the config file loaded by Load. A Loader that never
// loaded a file keeps its defaults.
func (l *Loader) Reload() error {
	l.mu.RLock()
	path := l.path
	l.mu.RUnlock()

	if path == "" {
		return nil
	}

	cfg, err := readFile(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	l.logger.Info("config reloaded", "path", path)
	return nil
}

// Watch starts an fsnotify watcher on the loaded config file. On every
// write the file is re-read and onReload is invoked with the new snapshot.
// A file that fails to parse keeps the previous snapshot. Call Stop to shut
// the watcher down.
func (l *Loader) Watch(onReload func(*Config)) error {
	l.mu.RLock()
	path := l.path
	l.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no config file loaded, nothing to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return err
	}

	l.watcher = fsw
	l.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-l.done:
				return

			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := l.Reload(); err != nil {
					l.logger.Error("config reload failed, keeping previous config", "error", err)
					continue
				}
				if onReload != nil {
					onReload(l.Get())
				}

			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				l.logger.Error("config watcher error", "error", err)
			}
		}
	}()

	l.logger.Info("watching config file", "path", path)
	return nil
}

// Stop shuts down the watcher, if one is running.
func (l *Loader) Stop() {
	if l.watcher != nil {
		close(l.done)
		_ = l.watcher.Close()
		l.watcher = nil
	}
}

// GenerateDefault writes a starter config file with the default settings.
func GenerateDefault(path string) error {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	header := []byte("# Trade capture service configuration.\n# Validation rules hot-reload on change; server settings need a restart.\n")
	return os.WriteFile(path, append(header, data...), 0644)
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}
