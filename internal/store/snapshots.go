package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoSnapshot is returned when no snapshot exists for a key.
var ErrNoSnapshot = errors.New("no snapshot")

// SaveSnapshot stores the JSON encoding of items under a fetch key.
func (s *Store) SaveSnapshot(ctx context.Context, key string, items any) error {
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, payload, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		key, string(payload), s.now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	return nil
}

// LoadSnapshot decodes the snapshot stored under key into dst and returns
// when it was fetched.
func (s *Store) LoadSnapshot(ctx context.Context, key string, dst any) (time.Time, error) {
	var payload string
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM snapshots WHERE key = ?`, key).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%s: %w", key, ErrNoSnapshot)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return time.Unix(fetchedAt, 0), nil
}

// DeleteSnapshots removes every stored snapshot.
func (s *Store) DeleteSnapshots(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	return res.RowsAffected()
}
