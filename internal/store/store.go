// Package store persists run results - per-operation verdicts and
// per-worker outcome records - so downgrade reasons and failures can be
// inspected after the run.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for run results. Uses SQLite with WAL
// mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Run identifies one harness invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	Threads    int
	Iterations int
}

// NewRun creates a run record with a fresh id.
func NewRun(threads, iterations int) Run {
	return Run{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Threads:    threads,
		Iterations: iterations,
	}
}

// Open creates or opens a SQLite database at the given path. Pass
// ":memory:" for an isolated in-memory store in tests.
//
// The database is configured with WAL mode, a 5-second busy timeout,
// and foreign key enforcement. Idempotent - safe to call on an
// existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}
