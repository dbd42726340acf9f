// Package watcher watches the data directory so a running TUI notices when
// another taskdeck process raised the refresh flag in the shared store.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"taskdeck/internal/utils"
)

// DefaultDebounceDuration is the default debounce window for batching rapid changes.
const DefaultDebounceDuration = 500 * time.Millisecond

// Config holds file watcher configuration.
type Config struct {
	Paths            []string               // Paths to watch (files or directories)
	DebounceDuration time.Duration          // Debounce window to batch rapid changes
	Match            func(name string) bool // Filters events by base name (nil = all)
	OnChange         func()                 // Called once per debounced burst
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(onChange func()) *Config {
	return &Config{
		DebounceDuration: DefaultDebounceDuration,
		OnChange:         onChange,
	}
}

// MatchPrefix matches files whose base name starts with prefix, which
// covers a SQLite database and its -wal and -journal siblings.
func MatchPrefix(prefix string) func(string) bool {
	return func(name string) bool {
		base := filepath.Base(name)
		return len(base) >= len(prefix) && base[:len(prefix)] == prefix
	}
}

// Watcher monitors file system changes and reports them debounced.
type Watcher struct {
	cfg     *Config
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	mu      sync.Mutex
}

// New creates a new Watcher instance.
func New(cfg *Config) (*Watcher, error) {
	if cfg.DebounceDuration <= 0 {
		cfg.DebounceDuration = DefaultDebounceDuration
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		cfg:    cfg,
		fsw:    fsw,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins watching the configured paths.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return fmt.Errorf("watcher has been stopped and cannot be restarted")
	}
	if w.started {
		return fmt.Errorf("watcher already started")
	}

	for _, path := range w.cfg.Paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			// Skip non-existent paths - they may be created later
			continue
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch path %q: %w", path, err)
		}
	}

	w.started = true
	go w.eventLoop()
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	close(w.stopCh)
	_ = w.fsw.Close()
	w.mu.Unlock()

	if started {
		<-w.doneCh
	}
}

// Close stops the watcher; it satisfies io.Closer.
func (w *Watcher) Close() error {
	w.Stop()
	return nil
}

// eventLoop processes fsnotify events with debouncing.
func (w *Watcher) eventLoop() {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	debounceCh := make(chan struct{}, 1)

	resetDebounce := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.cfg.DebounceDuration, func() {
			select {
			case debounceCh <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if w.cfg.Match != nil && !w.cfg.Match(event.Name) {
				continue
			}
			resetDebounce()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			utils.Debugf("watcher: %v", err)

		case <-debounceCh:
			if w.cfg.OnChange != nil {
				w.cfg.OnChange()
			}
		}
	}
}
