package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a VectorStore kept in a local SQLite file. Search loads the
// owner's rows and ranks them in process, which is adequate for the few
// hundred facts a single account produces. It is the fallback index when no
// Qdrant host is configured.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the index database at path. Use
// ":memory:" in tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: open %s: %w", path, err)
	}
	// One connection serialises writers and keeps ":memory:" databases alive.
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
CREATE TABLE IF NOT EXISTS facts (
    id           TEXT    PRIMARY KEY,
    owner_id     TEXT    NOT NULL,
    record_type  TEXT    NOT NULL,
    content      TEXT    NOT NULL,
    metadata     TEXT    NOT NULL DEFAULT '{}',
    embedding    BLOB    NOT NULL,
    updated_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_facts_owner_type ON facts (owner_id, record_type);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("sqlite index: migrate: %w", err)
	}
	return nil
}

// Upsert inserts or replaces docs in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if err := checkBatch(docs, embeddings); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO facts (id, owner_id, record_type, content, metadata, embedding, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    owner_id = excluded.owner_id,
    record_type = excluded.record_type,
    content = excluded.content,
    metadata = excluded.metadata,
    embedding = excluded.embedding,
    updated_at = excluded.updated_at`

	now := time.Now().Unix()
	for i, d := range docs {
		meta, err := json.Marshal(cloneMetadata(d.Metadata))
		if err != nil {
			return fmt.Errorf("sqlite index: marshal metadata for %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, q, d.ID, d.OwnerID, d.RecordType, d.Content, string(meta), encodeEmbedding(embeddings[i]), now); err != nil {
			return fmt.Errorf("sqlite index: upsert %s: %w", d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite index: commit: %w", err)
	}
	return nil
}

// where renders filter as a SQL predicate and its arguments.
func where(filter Filter) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}
	clauses := []string{"owner_id = ?"}
	args := []any{filter.OwnerID}
	if filter.RecordType != "" {
		clauses = append(clauses, "record_type = ?")
		args = append(args, filter.RecordType)
	}
	if filter.MetadataKey != "" {
		if strings.ContainsAny(filter.MetadataKey, `"\`) {
			return "", nil, fmt.Errorf("sqlite index: invalid metadata key %q", filter.MetadataKey)
		}
		clauses = append(clauses, "json_extract(metadata, ?) = ?")
		args = append(args, `$."`+filter.MetadataKey+`"`, filter.MetadataValue)
	}
	return strings.Join(clauses, " AND "), args, nil
}

// Search ranks every row matching filter by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, queryEmbedding []float32, filter Filter, topK int) ([]Document, error) {
	pred, args, err := where(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, record_type, content, metadata, embedding FROM facts WHERE `+pred, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite index: search: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var (
			d    Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&d.ID, &d.OwnerID, &d.RecordType, &d.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("sqlite index: search scan: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &d.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite index: metadata for %s: %w", d.ID, err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite index: embedding for %s: %w", d.ID, err)
		}
		d.Score = cosine(queryEmbedding, vec)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite index: search rows: %w", err)
	}
	return topKByScore(docs, topK), nil
}

// DeleteByFilter removes every row matching filter.
func (s *SQLiteStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	pred, args, err := where(filter)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM facts WHERE `+pred, args...); err != nil {
		return fmt.Errorf("sqlite index: delete: %w", err)
	}
	return nil
}

// Count returns the number of rows matching filter.
func (s *SQLiteStore) Count(ctx context.Context, filter Filter) (int, error) {
	pred, args, err := where(filter)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts WHERE `+pred, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite index: count: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable. It satisfies the readiness
// check used by the HTTP server.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite index: close: %w", err)
	}
	return nil
}
