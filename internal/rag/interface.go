// Package rag defines the owner-scoped retrieval components the insight
// engine is built on: vector storage, embedding, reranking and retrieval.
// Concrete implementations (Qdrant, SQLite, in-memory) satisfy these
// interfaces so the ingestion and insight layers never depend on a backend.
package rag

import (
	"context"
	"fmt"
	"strings"
)

// Document is one fact as stored in, or returned from, a VectorStore.
type Document struct {
	// ID is the deterministic fact identifier (a UUID string).
	ID string

	// OwnerID is the account the fact belongs to. Every search is filtered on it.
	OwnerID string

	// RecordType is the facts.RecordType the content was rendered from.
	RecordType string

	// Content is the rendered text of the fact.
	Content string

	// Metadata holds the per-type keys declared by the record type.
	Metadata map[string]string

	// Score is the cosine similarity assigned during search. Zero when unset.
	Score float32

	// RerankScore is the relevance assigned by the Reranker, valid only when
	// Reranked is true.
	RerankScore float32

	// Reranked reports whether the document's order came from the Reranker.
	Reranked bool
}

// Filter narrows a store operation to one owner and, optionally, one record
// type and one metadata key/value pair. OwnerID is mandatory.
type Filter struct {
	OwnerID       string
	RecordType    string
	MetadataKey   string
	MetadataValue string
}

// Validate rejects filters that would address more than one owner.
func (f Filter) Validate() error {
	if strings.TrimSpace(f.OwnerID) == "" {
		return ErrMissingOwner
	}
	if (f.MetadataKey == "") != (f.MetadataValue == "") {
		return fmt.Errorf("rag: metadata key and value must be set together")
	}
	return nil
}

// Matches reports whether doc satisfies f.
func (f Filter) Matches(doc Document) bool {
	if doc.OwnerID != f.OwnerID {
		return false
	}
	if f.RecordType != "" && doc.RecordType != f.RecordType {
		return false
	}
	if f.MetadataKey != "" && doc.Metadata[f.MetadataKey] != f.MetadataValue {
		return false
	}
	return true
}

// VectorStore persists fact embeddings and answers owner-filtered searches.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or replaces a batch of documents. embeddings[i] is the
	// vector for docs[i]. Re-upserting an existing ID replaces it.
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns up to topK documents matching filter, ordered by
	// descending cosine similarity to queryEmbedding.
	Search(ctx context.Context, queryEmbedding []float32, filter Filter, topK int) ([]Document, error)

	// DeleteByFilter removes every document matching filter. Deleting
	// nothing is not an error.
	DeleteByFilter(ctx context.Context, filter Filter) error

	// Count returns the number of documents matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RerankResult is one entry of a Reranker response.
type RerankResult struct {
	// Index points into the documents slice passed to Rerank.
	Index int

	// Score is the relevance score assigned by the reranker.
	Score float32
}

// Reranker reorders candidate documents by relevance to a query.
type Reranker interface {
	// Rerank returns at most topN results, most relevant first.
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RerankResult, error)
}
