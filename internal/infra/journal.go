package infra

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pageguard/pageguard/internal/domain"
)

// SQLiteJournal implements domain.Journal on a single SQLite file.
//
// Design decision: one database for all sessions rather than a file per
// page view. The events command wants a cross-session timeline, and a
// single file keeps retention trivial.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS protection_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	page_url    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	detail      TEXT NOT NULL,
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON protection_events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_occurred ON protection_events(occurred_at);
`

// OpenJournal opens or creates the journal database at path, creating
// parent directories as needed.
func OpenJournal(path string) (*SQLiteJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// WAL keeps concurrent reads (events command) from blocking writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteJournal{db: db, path: path}, nil
}

// Record appends one event.
func (j *SQLiteJournal) Record(ctx context.Context, ev domain.ProtectionEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO protection_events (session_id, page_url, kind, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, ev.PageURL, string(ev.Kind), ev.Detail, at)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]domain.ProtectionEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, session_id, page_url, kind, detail, occurred_at
		 FROM protection_events
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.ProtectionEvent
	for rows.Next() {
		var ev domain.ProtectionEvent
		var kind string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.PageURL, &kind, &ev.Detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Path returns the database file location (for the events command output).
func (j *SQLiteJournal) Path() string {
	return j.path
}

// Close releases the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Ensure SQLiteJournal implements domain.Journal.
var _ domain.Journal = (*SQLiteJournal)(nil)
