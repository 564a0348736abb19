package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches the configuration file for changes and emits reload
// events once writes have settled. Editors save via rename/truncate in
// rapid bursts, so events are debounced before a reload is signalled.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	events      chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks watcher activity for debugging.
type WatcherStats struct {
	FilesModified   int
	ReloadsSignaled int
	Errors          int
	LastEventTime   time.Time
	LastEventType   string
}

// NewWatcher creates a Watcher for the given config file path.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		watcher:     fsw,
		path:        abs,
		logger:      logger,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		events:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Events returns the channel on which reload signals are delivered.
// The channel has capacity 1; coalesced reloads are intentional.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start begins watching the config file's directory.
// Non-blocking; the watch loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: editors replace the file on
	// save and a direct file watch would be lost after the first rename.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Debug("Config watcher started", zap.String("dir", dir), zap.String("file", w.path))

	go w.run(ctx)

	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("Error closing config watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != w.path {
		return
	}

	var eventType string
	switch {
	case event.Op&fsnotify.Write != 0:
		eventType = "modify"
	case event.Op&fsnotify.Create != 0:
		eventType = "create"
	case event.Op&fsnotify.Rename != 0:
		eventType = "rename"
	default:
		return // Ignore chmod, remove.
	}

	w.mu.Lock()
	w.stats.FilesModified++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventType = eventType
	w.debounceMap[abs] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	fire := false
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			delete(w.debounceMap, path)
			fire = true
		}
	}
	if fire {
		w.stats.ReloadsSignaled++
	}
	w.mu.Unlock()

	if fire {
		select {
		case w.events <- struct{}{}:
		default: // A reload is already pending.
		}
	}
}

// GetStats returns the current watcher statistics.
func (w *Watcher) GetStats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching returns true if the watcher is currently running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
