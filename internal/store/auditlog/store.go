// Package auditlog persists the append-only secure-operations trail.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one audit row. Entries are append-only; there is no update or
// delete surface beyond retention pruning.
type Entry struct {
	ID        int64  `json:"id"`
	Timestamp int64  `json:"ts"`
	Operation string `json:"operation"`
	Actor     string `json:"actor,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// Store appends and reads audit entries. Appends serialize under one mutex
// so causally related entries never reorder.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("auditlog: database path required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("auditlog: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("auditlog: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS audit_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts INTEGER NOT NULL,
		operation TEXT NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);`)
	if err != nil {
		return fmt.Errorf("auditlog: migrate: %w", err)
	}
	return nil
}

// Append records one operation. The write commits before Append returns, so
// an operation reported as done is always present in the trail.
func (s *Store) Append(ctx context.Context, operation, actor, subject, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_entries(ts, operation, actor, subject, detail) VALUES(?,?,?,?,?)`,
		time.Now().Unix(), operation, actor, subject, detail)
	if err != nil {
		return fmt.Errorf("auditlog: append: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, operation, actor, subject, detail FROM audit_entries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("auditlog: query: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Operation, &e.Actor, &e.Subject, &e.Detail); err != nil {
			return nil, fmt.Errorf("auditlog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune removes entries older than the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE ts < ?`, before.Unix())
	if err != nil {
		return fmt.Errorf("auditlog: prune: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
