// Package store persists answered insight requests so an owner can revisit
// earlier answers. Each owner has an independent history; entries written by
// a clinician about a patient are filed under the patient and carry the
// clinician's id.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry is one answered insight request.
type Entry struct {
	// ID is assigned by the store on Append.
	ID int64
	// OwnerID is the account the answer is about.
	OwnerID string
	// Audience is "patient" or "clinician".
	Audience string
	// RequesterID is the clinician id for clinician requests, empty otherwise.
	RequesterID string
	// Query is the question as asked.
	Query string
	// Answer is the JSON-encoded insight answer.
	Answer string
	// NoData is true when the answer was the canonical no-data response.
	NoData bool
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// HistoryStore persists and retrieves insight history keyed by owner.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Append persists e; ID and CreatedAt are filled by the store.
	Append(ctx context.Context, e Entry) error
	// Recent returns up to n entries for ownerID, newest first.
	Recent(ctx context.Context, ownerID string, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a HistoryStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns ~/.healthlens/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".healthlens")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer connection avoids SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS insights (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id      TEXT    NOT NULL,
    audience      TEXT    NOT NULL CHECK(audience IN ('patient','clinician')),
    requester_id  TEXT    NOT NULL DEFAULT '',
    query         TEXT    NOT NULL,
    answer        TEXT    NOT NULL,
    no_data       INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL  -- Unix timestamp (milliseconds)
);
CREATE INDEX IF NOT EXISTS idx_insights_owner_created
    ON insights (owner_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single entry.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	if e.OwnerID == "" {
		return fmt.Errorf("store: append: owner id is required")
	}
	if e.Audience == "" {
		e.Audience = "patient"
	}
	const q = `INSERT INTO insights (owner_id, audience, requester_id, query, answer, no_data, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	noData := 0
	if e.NoData {
		noData = 1
	}
	if _, err := s.db.ExecContext(ctx, q, e.OwnerID, e.Audience, e.RequesterID, e.Query, e.Answer, noData, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n entries for ownerID, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, ownerID string, n int) ([]Entry, error) {
	const q = `
SELECT id, owner_id, audience, requester_id, query, answer, no_data, created_at
FROM   insights
WHERE  owner_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, ownerID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e      Entry
			ts     int64
			noData int
		)
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Audience, &e.RequesterID, &e.Query, &e.Answer, &noData, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		e.NoData = noData == 1
		e.CreatedAt = time.UnixMilli(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
