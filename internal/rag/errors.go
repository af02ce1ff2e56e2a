package rag

import (
	"errors"
	"fmt"
)

// Error kinds. Stage-specific failures wrap one of these so callers can branch
// with errors.Is regardless of the backend that produced them.
var (
	// ErrMissingOwner is returned when an operation is attempted without an owner id.
	ErrMissingOwner = errors.New("rag: owner id is required")

	// ErrEmbedding marks a failure of the embedding backend.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIndex marks a failure of the vector store.
	ErrIndex = errors.New("vector index operation failed")

	// ErrRerank marks a failure of the reranker. It never reaches callers of
	// the insight engine; retrieval falls back to similarity order instead.
	ErrRerank = errors.New("rerank failed")

	// ErrGeneration marks a failure of the generator call itself.
	ErrGeneration = errors.New("generation failed")

	// ErrGenerationFormat marks generator output that does not match the
	// insight answer schema.
	ErrGenerationFormat = errors.New("generation output does not match the insight schema")

	// ErrEmptyQuery is returned when an insight is requested for a blank question.
	ErrEmptyQuery = errors.New("query is empty")
)

// IngestionError reports a failed ingest or retract. It is informational: the
// write that triggered it has already succeeded in the system of record.
type IngestionError struct {
	// Op is "ingest", "retract", or "read" for a record store failure.
	Op string

	// OwnerID is the account whose fact could not be written.
	OwnerID string

	// RecordType is the record type being written.
	RecordType string

	// Err is the underlying cause, wrapping ErrEmbedding, ErrIndex or a
	// facts validation error.
	Err error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion: %s %s for owner %s: %v", e.Op, e.RecordType, e.OwnerID, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// InsightUnavailableError is the single error kind surfaced by the insight
// engine when an answer could not be produced.
type InsightUnavailableError struct {
	// Stage names the pipeline step that failed: retrieve, generate or parse.
	Stage string

	// Err is the underlying cause.
	Err error
}

func (e *InsightUnavailableError) Error() string {
	return fmt.Sprintf("insight unavailable at %s: %v", e.Stage, e.Err)
}

func (e *InsightUnavailableError) Unwrap() error { return e.Err }
