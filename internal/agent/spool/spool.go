// Package spool buffers reconstructed usage sessions on disk between
// collection and submission, so a cycle whose submit fails is retried on the
// next one instead of being lost.
package spool

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fleetsight/fleetsight/internal/sessions"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_json TEXT NOT NULL,
    staged_at TIMESTAMP NOT NULL,
    flushed_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_pending_flushed ON pending_sessions(flushed_at);
`

// Spool is a local SQLite staging area for sessions awaiting submission.
type Spool struct {
	db *sql.DB
}

// Open opens (or creates) the spool at path. Use ":memory:" in tests.
func Open(path string) (*Spool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spool: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create spool schema: %w", err)
	}

	return &Spool{db: db}, nil
}

func (s *Spool) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stage appends sessions from the current collection cycle.
func (s *Spool) Stage(sess []sessions.UsageSession, stagedAt time.Time) error {
	if len(sess) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin staging: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO pending_sessions (session_json, staged_at) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare staging insert: %w", err)
	}
	defer stmt.Close()

	for _, one := range sess {
		body, err := json.Marshal(one)
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}
		if _, err := stmt.Exec(string(body), stagedAt.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("failed to stage session: %w", err)
		}
	}

	return tx.Commit()
}

// Entry is one staged session together with its spool row id, so callers can
// flush exactly the rows they transmitted.
type Entry struct {
	ID      int64
	Session sessions.UsageSession
}

// Pending returns all staged sessions not yet flushed, oldest first.
func (s *Spool) Pending() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, session_json FROM pending_sessions
		WHERE flushed_at IS NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending sessions: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var entry Entry
		var body string
		if err := rows.Scan(&entry.ID, &body); err != nil {
			return nil, fmt.Errorf("failed to scan pending session: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &entry.Session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending session: %w", err)
		}
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending sessions: %w", err)
	}
	return result, nil
}

// MarkFlushed records that the given rows were submitted. Rows staged after
// the caller read Pending stay pending for the next cycle.
func (s *Spool) MarkFlushed(ids []int64, flushedAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, flushedAt.UTC().Format(time.RFC3339))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	_, err := s.db.Exec(fmt.Sprintf(`
		UPDATE pending_sessions SET flushed_at = ?
		WHERE id IN (%s)`, strings.Join(placeholders, ",")),
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark sessions flushed: %w", err)
	}
	return nil
}

// Prune deletes flushed sessions older than the retention window and returns
// the number removed.
func (s *Spool) Prune(olderThan time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM pending_sessions
		WHERE flushed_at IS NOT NULL AND flushed_at < ?`,
		olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to prune spool: %w", err)
	}
	return res.RowsAffected()
}
