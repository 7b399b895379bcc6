// Package history records pipeline runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one recorded pipeline run.
type Run struct {
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Model      string    `json:"model"`
	Language   string    `json:"language,omitempty"`
	State      string    `json:"state"`
	Partial    bool      `json:"partial"`
	Chars      int       `json:"chars"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store wraps the runs table.
type Store struct {
	db *sql.DB
}

// Open creates the database at path if needed.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS runs (
    session_id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    input TEXT,
    output TEXT,
    model TEXT,
    language TEXT,
    state TEXT NOT NULL,
    partial INTEGER NOT NULL DEFAULT 0,
    chars INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts or replaces a run.
func (s *Store) Record(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(session_id, mode, input, output, model, language, state, partial, chars, error, started_at, finished_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Mode, r.Input, r.Output, r.Model, r.Language, r.State, r.Partial, r.Chars, r.Error,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.SessionID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, mode, input, output, model, language, state, partial, chars, error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                            Run
			input, output, lang, errText sql.NullString
			started, finished            int64
		)
		if err := rows.Scan(&r.SessionID, &r.Mode, &input, &output, &r.Model, &lang, &r.State,
			&r.Partial, &r.Chars, &errText, &started, &finished); err != nil {
			return nil, err
		}
		r.Input, r.Output, r.Language, r.Error = input.String, output.String, lang.String, errText.String
		r.StartedAt, r.FinishedAt = time.UnixMilli(started), time.UnixMilli(finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
