package watcher

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Data Directory Watcher Tests
// =============================================================================

func startWatcher(t *testing.T, cfg *Config) *Watcher {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	return w
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestWatcherDetectsWrite(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "taskdeck.db")
	_ = os.WriteFile(db, []byte("a"), 0600)

	var changes atomic.Int32
	startWatcher(t, &Config{
		Paths:            []string{dir},
		DebounceDuration: 30 * time.Millisecond,
		OnChange:         func() { changes.Add(1) },
	})

	_ = os.WriteFile(db, []byte("b"), 0600)

	if !waitFor(func() bool { return changes.Load() > 0 }, 2*time.Second) {
		t.Fatal("expected change to be reported")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "taskdeck.db")
	_ = os.WriteFile(db, nil, 0600)

	var changes atomic.Int32
	startWatcher(t, &Config{
		Paths:            []string{dir},
		DebounceDuration: 150 * time.Millisecond,
		OnChange:         func() { changes.Add(1) },
	})

	for i := 0; i < 10; i++ {
		_ = os.WriteFile(db, []byte{byte(i)}, 0600)
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(400 * time.Millisecond)

	if got := changes.Load(); got != 1 {
		t.Errorf("expected 1 debounced change, got %d", got)
	}
}

func TestWatcherMatchFilter(t *testing.T) {
	dir := t.TempDir()

	var changes atomic.Int32
	startWatcher(t, &Config{
		Paths:            []string{dir},
		DebounceDuration: 20 * time.Millisecond,
		Match:            MatchPrefix("taskdeck.db"),
		OnChange:         func() { changes.Add(1) },
	})

	_ = os.WriteFile(filepath.Join(dir, "taskdeck-123.log"), []byte("log"), 0600)
	time.Sleep(150 * time.Millisecond)
	if changes.Load() != 0 {
		t.Fatalf("unmatched file should be ignored")
	}

	_ = os.WriteFile(filepath.Join(dir, "taskdeck.db-wal"), []byte("wal"), 0600)
	if !waitFor(func() bool { return changes.Load() > 0 }, 2*time.Second) {
		t.Error("WAL write should be reported")
	}
}

func TestMatchPrefix(t *testing.T) {
	m := MatchPrefix("taskdeck.db")
	for name, want := range map[string]bool{
		"/x/taskdeck.db":         true,
		"/x/taskdeck.db-journal": true,
		"/x/taskdeck.lock":       false,
		"db":                     false,
	} {
		if m(name) != want {
			t.Errorf("MatchPrefix(%q) = %v", name, !want)
		}
	}
}

func TestWatcherStopIdempotentAndNoRestart(t *testing.T) {
	w, err := New(DefaultConfig(nil))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	w.Stop()
	_ = w.Close()

	if err := w.Start(); err == nil {
		t.Error("expected restart after stop to fail")
	}
}

func TestWatcherMissingPathSkipped(t *testing.T) {
	startWatcher(t, &Config{Paths: []string{filepath.Join(t.TempDir(), "missing")}})
}
