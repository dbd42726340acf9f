package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the data directory lock.
var ErrLocked = errors.New("another taskdeck instance is already running")

// Lock is an exclusive lock on a data directory.
type Lock struct {
	fl *flock.Flock
}

// AcquireLock takes the lock file in dir without blocking.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(dir, "taskdeck.lock"))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release unlocks the data directory.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
