// Package refresh defines the "data changed elsewhere, refetch" signal.
package refresh

import (
	"context"
	"sync"
)

// Signal is raised by whoever changed data out of band and cleared by the
// view that refetched it.
type Signal interface {
	Pending(ctx context.Context) (bool, error)
	Raise(ctx context.Context) error
	Clear(ctx context.Context) error
}

// Memory is an in-process Signal.
type Memory struct {
	mu      sync.Mutex
	pending bool
}

// NewMemory returns a cleared signal.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Pending(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, nil
}

func (m *Memory) Raise(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = true
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false
	return nil
}

// Consume reports whether s was pending and clears it if so.
func Consume(ctx context.Context, s Signal) (bool, error) {
	pending, err := s.Pending(ctx)
	if err != nil || !pending {
		return false, err
	}
	return true, s.Clear(ctx)
}
