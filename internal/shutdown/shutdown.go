// Package shutdown coordinates signal handling and ordered cleanup of the
// store, watcher and HTTP client.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"taskdeck/internal/utils"
)

// CleanupFunc is a function that performs cleanup on shutdown.
// It receives a context that will be cancelled when the shutdown times out.
type CleanupFunc func(ctx context.Context) error

type cleanupEntry struct {
	name string
	fn   CleanupFunc
}

// Manager handles graceful shutdown coordination.
type Manager struct {
	mu         sync.Mutex
	cleanups   []cleanupEntry
	shutdown   bool
	shutdownCh chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
	waitOnce   sync.Once
	waitErr    error
}

// NewManager creates a new shutdown manager.
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions are called in LIFO order (last registered, first called).
func (m *Manager) RegisterCleanup(name string, fn CleanupFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, cleanupEntry{name: name, fn: fn})
}

// RegisterCloser registers c.Close as a cleanup.
func (m *Manager) RegisterCloser(name string, c interface{ Close() error }) {
	m.RegisterCleanup(name, func(context.Context) error { return c.Close() })
}

// Shutdown initiates a graceful shutdown.
// Safe to call multiple times; only the first call has effect.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.mu.Lock()
		m.shutdown = true
		m.mu.Unlock()

		m.cancel()
		close(m.shutdownCh)
	})
}

// Done is closed once Shutdown has been called.
func (m *Manager) Done() <-chan struct{} {
	return m.shutdownCh
}

// NotifyOnSignal calls Shutdown on SIGINT, SIGTERM or cancellation of
// parent. The returned stop function releases the signal handler without
// shutting down.
func (m *Manager) NotifyOnSignal(parent context.Context) (stop func()) {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			select {
			case <-stopped:
				return
			default:
			}
			utils.Debugf("shutdown requested: %v", ctx.Err())
			m.Shutdown()
		case <-m.shutdownCh:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopped)
			cancel()
		})
	}
}

// runCleanups executes all cleanup functions in LIFO order and joins their errors.
func (m *Manager) runCleanups(ctx context.Context) error {
	m.mu.Lock()
	cleanups := make([]cleanupEntry, len(m.cleanups))
	copy(cleanups, m.cleanups)
	m.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i].fn(ctx); err != nil {
			utils.Warnf("cleanup %s failed: %v", cleanups[i].name, err)
			errs = append(errs, fmt.Errorf("%s: %w", cleanups[i].name, err))
		}
	}
	return errors.Join(errs...)
}

// Wait runs the registered cleanups once. It returns the context error if
// cleanup outlives ctx, otherwise the joined cleanup errors.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.waitOnce.Do(func() { m.waitErr = m.runCleanups(ctx) })
		close(done)
	}()

	select {
	case <-done:
		return m.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsShutdown returns true if shutdown has been initiated.
func (m *Manager) IsShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Context returns a context that is cancelled when shutdown is initiated.
func (m *Manager) Context() context.Context {
	return m.ctx
}
