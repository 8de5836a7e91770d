// Package db owns the embedded SQLite store: connection pools tuned for a
// single-writer/many-readers WAL setup, and the versioned schema migrations
// applied at open.
package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBusyTimeout = 5 * time.Second

	// SQLite WAL mode allows many readers alongside a single writer; 4 is
	// plenty for a single-host workbench.
	defaultReaderConns = 4
)

// Store bundles the writer and reader pools for one database file. All
// mutations go through DB (a single serialized connection); read-heavy
// queries may use RO.
type Store struct {
	DB *sqlx.DB
	RO *sqlx.DB

	path string
}

// Open opens (creating if needed) the database at dbPath, applies pending
// migrations, and returns the configured store.
func Open(dbPath string) (*Store, error) {
	normalized := normalizePath(dbPath)
	if err := ensureDir(normalized); err != nil {
		return nil, fmt.Errorf("failed to prepare database path: %w", err)
	}
	if err := ensureFile(normalized); err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}

	// Writer DSN settings. mode and cache are SQLite URI parameters; the
	// underscore-prefixed ones are driver pragmas applied per connection.
	// - mode=rwc: open read-write, creating the file if needed.
	// - cache=shared: allow multiple connections to share a page cache.
	// - _foreign_keys=on: enforce FK constraints consistently.
	// - _busy_timeout: wait briefly on locks to reduce transient "database is locked".
	// - _journal_mode=WAL: better read concurrency with a single writer.
	// - _synchronous=NORMAL: reasonable durability/perf tradeoff for app workloads.
	writerDSN := fmt.Sprintf(
		"file:%s?mode=rwc&cache=shared&_foreign_keys=on&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		normalized,
		int(defaultBusyTimeout/time.Millisecond),
	)
	writer, err := sqlx.Open("sqlite3", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer connection: serializes writes and avoids SQLITE_BUSY.
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	if err := migrate(writer); err != nil {
		writer.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	// Reader DSN: mode=ro opens the file read-only and _query_only=true
	// rejects writes at the connection level on top of that. journal_mode
	// and synchronous are database-level (set by the writer).
	readerDSN := fmt.Sprintf(
		"file:%s?mode=ro&cache=shared&_foreign_keys=on&_busy_timeout=%d&_query_only=true",
		normalized,
		int(defaultBusyTimeout/time.Millisecond),
	)
	reader, err := sqlx.Open("sqlite3", readerDSN)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to open read-only database: %w", err)
	}
	reader.SetMaxOpenConns(defaultReaderConns)
	reader.SetMaxIdleConns(defaultReaderConns)

	return &Store{DB: writer, RO: reader, path: normalized}, nil
}

// Path returns the resolved database file path.
func (s *Store) Path() string { return s.path }

// Close closes both pools.
func (s *Store) Close() error {
	var firstErr error
	if err := s.RO.Close(); err != nil {
		firstErr = err
	}
	if err := s.DB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func ensureFile(dbPath string) error {
	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	return file.Close()
}

func normalizePath(dbPath string) string {
	if dbPath == "" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
