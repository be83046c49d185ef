// Package transcript archives completed turns in SQLite.
//
// The archive is informational: the relay works identically without it, and
// write failures never fail a turn.
package transcript

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/dbrandt/legate/internal/logging"
)

// Entry is one archived turn.
type Entry struct {
	ID         string
	SessionKey string
	Workspace  string
	ThreadID   string
	Model      string
	Prompt     string
	Reply      string
	Duration   time.Duration
	CreatedAt  time.Time
}

// Store is the SQLite-backed turn archive.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open opens (or creates) the archive at path and runs migrations.
// Use ":memory:" for tests.
func Open(path string, log *logging.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("transcript: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcript: open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("transcript: set WAL mode: %w", err)
	}

	s := &Store{db: db, log: log.Named("transcript")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.log.Debug().Str("path", path).Msg("transcript archive opened")
	return s, nil
}

// Close closes the archive.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one turn to the archive.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_key, workspace, thread_id, model, prompt, reply, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionKey, e.Workspace, e.ThreadID, e.Model, e.Prompt, e.Reply,
		e.Duration.Milliseconds(), e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("transcript: record turn: %w", err)
	}
	return nil
}

// Recent returns up to limit turns for a session key, newest first.
func (s *Store) Recent(ctx context.Context, sessionKey string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_key, workspace, thread_id, model, prompt, reply, duration_ms, created_at
		 FROM turns WHERE session_key = ? ORDER BY created_at DESC, id LIMIT ?`,
		sessionKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("transcript: query turns: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationMs int64
		var createdAt string
		if err := rows.Scan(&e.ID, &e.SessionKey, &e.Workspace, &e.ThreadID,
			&e.Model, &e.Prompt, &e.Reply, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("transcript: scan turn: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
