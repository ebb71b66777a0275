package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/avolkov/admitgw/internal/observability"
)

// PatternsCallback is called with the full pattern set whenever the
// public-patterns file changes.
type PatternsCallback func([]string)

// ErrorCallback is called when an error occurs during a reload.
type ErrorCallback func(error)

// PatternsWatcher watches a public-patterns file and triggers reloads.
// The file holds one route pattern per line; blank lines and lines
// starting with '#' are ignored.
type PatternsWatcher struct {
	path          string
	watcher       *fsnotify.Watcher
	callback      PatternsCallback
	errorCallback ErrorCallback
	logger        observability.Logger
	debounceDelay time.Duration
	lastPatterns  []string
	mu            sync.RWMutex
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	running       bool
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*PatternsWatcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *PatternsWatcher) {
		w.debounceDelay = delay
	}
}

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *PatternsWatcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *PatternsWatcher) {
		w.errorCallback = callback
	}
}

// NewPatternsWatcher creates a new public-patterns file watcher.
func NewPatternsWatcher(path string, callback PatternsCallback, opts ...WatcherOption) (*PatternsWatcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &PatternsWatcher{
		path:          absPath,
		watcher:       fsWatcher,
		callback:      callback,
		debounceDelay: 100 * time.Millisecond,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads the initial pattern set and begins watching the file.
// The initial set is delivered through the callback before Start
// returns.
func (w *PatternsWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	patterns, err := ReadPatternsFile(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.lastPatterns = patterns
	w.mu.Unlock()

	// Watch the directory so editors that replace the file via rename
	// are still observed.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	w.logger.Info("started watching public patterns file",
		observability.String("path", w.path),
		observability.Int("patterns", len(patterns)),
	)

	if w.callback != nil {
		w.callback(patterns)
	}

	go w.watch(ctx)

	return nil
}

// Stop stops watching the patterns file.
func (w *PatternsWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// LastPatterns returns the last successfully loaded pattern set.
func (w *PatternsWatcher) LastPatterns() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastPatterns
}

// watch is the main watch loop.
func (w *PatternsWatcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("patterns watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("patterns watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			debounceTimer, debounceCh = w.handleFileEvent(event, debounceTimer, debounceCh)

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.handleWatchError(err)
		}
	}
}

// handleFileEvent processes a file system event and returns the
// updated debounce timer.
func (w *PatternsWatcher) handleFileEvent(
	event fsnotify.Event,
	debounceTimer *time.Timer,
	debounceCh <-chan time.Time,
) (timer *time.Timer, ch <-chan time.Time) {
	if filepath.Clean(event.Name) != w.path {
		return debounceTimer, debounceCh
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return debounceTimer, debounceCh
	}

	w.logger.Debug("patterns file changed",
		observability.String("path", event.Name),
		observability.String("op", event.Op.String()),
	)

	if debounceTimer != nil {
		debounceTimer.Stop()
	}
	debounceTimer = time.NewTimer(w.debounceDelay)
	return debounceTimer, debounceTimer.C
}

// handleWatchError handles watcher errors.
func (w *PatternsWatcher) handleWatchError(err error) {
	w.logger.Error("patterns watcher error",
		observability.Error(err),
	)
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

// reload re-reads the patterns file. A failed read keeps the last
// good pattern set.
func (w *PatternsWatcher) reload() {
	patterns, err := ReadPatternsFile(w.path)
	if err != nil {
		w.logger.Error("failed to reload public patterns",
			observability.String("path", w.path),
			observability.Error(err),
		)
		if w.errorCallback != nil {
			w.errorCallback(err)
		}
		return
	}

	w.mu.Lock()
	w.lastPatterns = patterns
	w.mu.Unlock()

	w.logger.Info("public patterns reloaded",
		observability.String("path", w.path),
		observability.Int("patterns", len(patterns)),
	)

	if w.callback != nil {
		w.callback(patterns)
	}
}

// ReadPatternsFile reads a public-patterns file: one pattern per
// line, blank lines and '#' comments skipped.
func ReadPatternsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path from trusted config
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}
