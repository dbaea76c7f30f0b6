// Package store is the record persistence layer: one SQLite table of
// content records keyed by content_id, a schema registry for annotation
// columns, and a fetch log.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store wraps the content database.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewStore creates a Store from an already-opened database connection and
// applies the schema. The caller must have blank-imported a driver
// registered under "sqlite" (modernc.org/sqlite).
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ApplySchema(db); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{DB: db, logger: logger}, nil
}

// Open opens (creating if needed) the content database at path with
// production pragmas, applies the schema, and returns a Store.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	s, err := NewStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}
