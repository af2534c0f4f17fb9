package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of fsnotify events editors and
// atomic-rename writers produce into one reload.
const reloadDebounce = 500 * time.Millisecond

// Manager handles configuration loading and hot-reload. Readers get
// the current snapshot via an atomic pointer; a reload never blocks
// requests in flight.
type Manager struct {
	config  atomic.Pointer[Config]
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu       sync.Mutex
	onChange []func(*Config)
}

// NewManager loads the file at path and returns a manager around it.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		path:   path,
		logger: logger.With(slog.String("component", "config")),
	}
	m.config.Store(cfg)
	return m, nil
}

// Get returns the current configuration snapshot. Safe for concurrent
// use; the snapshot is never mutated after Store.
func (m *Manager) Get() *Config {
	return m.config.Load()
}

// OnChange registers a callback invoked after each successful reload.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Watch starts watching the configuration file until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}

	go m.watchLoop(ctx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			_ = m.watcher.Close()
			return

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, m.reload)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// reload re-parses the file. A file that fails to load or validate
// leaves the current configuration in place.
func (m *Manager) reload() {
	cfg, err := LoadFromFile(m.path)
	if err != nil {
		m.logger.Error("config reload failed, keeping current", slog.String("error", err.Error()))
		return
	}

	m.config.Store(cfg)
	m.logger.Info("configuration reloaded")

	m.mu.Lock()
	callbacks := make([]func(*Config), len(m.onChange))
	copy(callbacks, m.onChange)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
}

// Close stops the configuration watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
