// Package store is the local SQLite database: the cross-process refresh flag,
// persisted fetch snapshots and the mutation journal.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// FileName is the database file name inside the data directory.
const FileName = "taskdeck.db"

// Store wraps the SQL database connection
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and runs migrations
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure store: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path, now: time.Now}, nil
}

// migrate runs the embedded goose migrations
func migrate(db *sql.DB) error {
	// goose logs to stdout otherwise, which corrupts the TUI
	goose.SetLogger(log.New(io.Discard, "", 0))
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Dir returns the directory holding the database.
func (s *Store) Dir() string { return filepath.Dir(s.path) }

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
