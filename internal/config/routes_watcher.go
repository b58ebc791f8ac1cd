package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/attribot/attribot/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// RoutesReloadCallback is called when the routes file is successfully
// reloaded. A callback error is logged but the watcher keeps watching.
type RoutesReloadCallback func(routes *RoutesFile) error

// RoutesWatcherConfig holds configuration for the RoutesWatcher.
type RoutesWatcherConfig struct {
	// FilePath is the routes YAML file to watch
	FilePath string

	// DebounceMillis coalesces bursts of file change events (editor save
	// sequences) into a single reload. Default: 500ms.
	DebounceMillis int
}

// RoutesWatcher watches the routes file for changes and triggers reload
// callbacks with debouncing. Invalid configs during reload are logged but
// never replace the previous valid config.
type RoutesWatcher struct {
	config   RoutesWatcherConfig
	callback RoutesReloadCallback
	cancel   context.CancelFunc
	stopped  chan struct{}
	ready    chan struct{}
	logger   *logging.Logger
	mu       sync.Mutex

	debounceTimer *time.Timer
}

// NewRoutesWatcher creates a watcher for the given routes file.
func NewRoutesWatcher(config RoutesWatcherConfig, callback RoutesReloadCallback) (*RoutesWatcher, error) {
	if config.FilePath == "" {
		return nil, fmt.Errorf("FilePath cannot be empty")
	}
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config.DebounceMillis == 0 {
		config.DebounceMillis = 500
	}

	return &RoutesWatcher{
		config:   config,
		callback: callback,
		stopped:  make(chan struct{}),
		ready:    make(chan struct{}),
		logger:   logging.GetLogger("config.routes"),
	}, nil
}

// Start loads the initial config, calls the callback, and begins watching.
// Returns an error if the initial load or callback fails.
func (w *RoutesWatcher) Start(ctx context.Context) error {
	initial, err := LoadRoutesFile(w.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load initial routes config: %w", err)
	}
	if err := w.callback(initial); err != nil {
		return fmt.Errorf("initial routes callback failed: %w", err)
	}

	w.logger.Info("Loaded %d route(s) from %s", len(initial.Routes), w.config.FilePath)

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	go w.watchLoop(watchCtx)

	// Wait for fsnotify to be fully initialized so changes right after
	// startup are not missed.
	select {
	case <-w.ready:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for file watcher to initialize")
	}
	return nil
}

// Stop stops the watcher and waits for the watch loop to exit.
func (w *RoutesWatcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name implements lifecycle.Component.
func (w *RoutesWatcher) Name() string { return "routes-watcher" }

func (w *RoutesWatcher) signalReady() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.ready:
	default:
		close(w.ready)
	}
}

func (w *RoutesWatcher) watchLoop(ctx context.Context) {
	defer close(w.stopped)
	defer w.signalReady()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("Failed to create file watcher: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(w.config.FilePath); err != nil {
		w.logger.Error("Failed to watch %s: %v", w.config.FilePath, err)
		return
	}

	w.logger.Debug("Watching %s for changes (debounce: %dms)", w.config.FilePath, w.config.DebounceMillis)
	w.signalReady()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// Rename/Remove happen on atomic writes: the inode changes, so
			// the watch must be re-added before reloading.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if event.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				time.Sleep(50 * time.Millisecond)
				if err := watcher.Add(w.config.FilePath); err != nil {
					w.logger.Warn("Failed to re-add watch after %s: %v", event.Op, err)
				}
			}
			w.handleFileChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error: %v", err)
		}
	}
}

// handleFileChange debounces reloads by resetting a timer on each event.
func (w *RoutesWatcher) handleFileChange() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(
		time.Duration(w.config.DebounceMillis)*time.Millisecond,
		w.reload,
	)
}

// reload loads the file and hands the result to the callback. Invalid
// configs keep the previous one.
func (w *RoutesWatcher) reload() {
	newRoutes, err := LoadRoutesFile(w.config.FilePath)
	if err != nil {
		w.logger.Error("Failed to reload routes (keeping previous config): %v", err)
		return
	}
	if err := w.callback(newRoutes); err != nil {
		w.logger.Error("Routes reload callback failed: %v", err)
		return
	}
	w.logger.Info("Reloaded %d route(s) from %s", len(newRoutes.Routes), w.config.FilePath)
}
