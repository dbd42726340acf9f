package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Entry is one recorded mutation outcome.
type Entry struct {
	ID        int64
	Timestamp time.Time
	Op        string
	TaskID    int64
	Success   bool
	ErrorType string
	Error     string
}

// Record appends a mutation outcome to the journal.
func (s *Store) Record(ctx context.Context, op string, taskID int64, err error) error {
	var msg string
	if err != nil {
		msg = err.Error()
	}
	_, execErr := s.db.ExecContext(ctx, `
		INSERT INTO journal (timestamp, op, task_id, success, error_type, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.now().Unix(), op, taskID, boolToInt(err == nil), nullString(categorizeError(err)), nullString(msg))
	if execErr != nil {
		return fmt.Errorf("failed to record %s: %w", op, execErr)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, op, task_id, success, error_type, error
		FROM journal ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var success int
		var errType, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Op, &e.TaskID, &success, &errType, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan journal: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0)
		e.Success = success != 0
		e.ErrorType = errType.String
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Cleanup removes entries older than retentionDays and returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM journal WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		_, _ = s.db.ExecContext(ctx, "VACUUM")
	}
	return n, nil
}

// categorizeError buckets an error for the error_type column
func categorizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection") || strings.Contains(errStr, "circuit"):
		return "network"
	case strings.Contains(errStr, "session") || strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "credential"):
		return "auth"
	case strings.Contains(errStr, "not found"):
		return "not_found"
	case strings.Contains(errStr, "invalid") || strings.Contains(errStr, "validation"):
		return "validation"
	default:
		return "unknown"
	}
}
