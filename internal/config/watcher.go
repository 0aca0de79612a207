package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the config file and reloads it on change. A reload that
// parses and validates replaces the current config and invokes the reload
// callback; a broken file invokes the error callback and keeps the previous
// configuration in force.
type Watcher struct {
	watcher    *fsnotify.Watcher
	logger     *slog.Logger
	configPath string
	done       chan struct{}

	mu       sync.Mutex
	running  bool
	current  *Config
	onReload func(*Config)
	onError  func(error)
}

// NewWatcher creates a watcher for the given config path. An empty path
// means the default location; a nil logger falls back to slog.Default().
func NewWatcher(path string, initial *Config, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		path = ConfigPath()
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:    fw,
		logger:     logger,
		configPath: path,
		current:    initial,
		done:       make(chan struct{}),
	}, nil
}

// SetReloadCallback sets the callback invoked after a successful reload.
func (w *Watcher) SetReloadCallback(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// SetErrorCallback sets the callback invoked when a changed file fails to
// load or validate.
func (w *Watcher) SetErrorCallback(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// Current returns the last valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Start begins watching the config file for changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory containing the file (more reliable for writes)
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return err
	}

	go w.watch()
	return nil
}

// watch is the main watch loop.
func (w *Watcher) watch() {
	filename := filepath.Base(w.configPath)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			// Only care about our file
			if filepath.Base(event.Name) != filename {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	w.logger.Debug("config file changed", "file", w.configPath)

	cfg, err := LoadConfig(w.configPath)
	if err != nil {
		w.logger.Warn("config file changed but reload failed", "error", err)
		w.mu.Lock()
		onError := w.onError
		w.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return
	}

	w.mu.Lock()
	w.current = cfg
	onReload := w.onReload
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	if onReload != nil {
		onReload(cfg)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.done)
	return w.watcher.Close()
}
