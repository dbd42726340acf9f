package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RefreshFlag is the flag other processes raise after changing server data.
const RefreshFlag = "refresh"

// GetFlag reads a named flag. A missing flag reads as false.
func (s *Store) GetFlag(ctx context.Context, name string) (bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM flags WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read flag %s: %w", name, err)
	}
	return v != 0, nil
}

// SetFlag writes a named flag.
func (s *Store) SetFlag(ctx context.Context, name string, value bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flags (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, boolToInt(value), s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write flag %s: %w", name, err)
	}
	return nil
}

// Signal is a refresh.Signal persisted in the store, shared by every
// process using the same data directory.
type Signal struct {
	store *Store
	name  string
}

// RefreshSignal returns the shared refresh signal.
func (s *Store) RefreshSignal() *Signal {
	return &Signal{store: s, name: RefreshFlag}
}

func (sig *Signal) Pending(ctx context.Context) (bool, error) {
	return sig.store.GetFlag(ctx, sig.name)
}

func (sig *Signal) Raise(ctx context.Context) error {
	return sig.store.SetFlag(ctx, sig.name, true)
}

func (sig *Signal) Clear(ctx context.Context) error {
	return sig.store.SetFlag(ctx, sig.name, false)
}
