package rag

import (
	"context"
	"sync"
)

// MemoryStore is a brute-force in-process VectorStore. It backs tests and
// single-process deployments that do not need persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	doc Document
	vec []float32
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Upsert stores copies of docs and embeddings, replacing existing IDs.
func (m *MemoryStore) Upsert(_ context.Context, docs []Document, embeddings [][]float32) error {
	if err := checkBatch(docs, embeddings); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range docs {
		d.Metadata = cloneMetadata(d.Metadata)
		d.Score, d.RerankScore, d.Reranked = 0, 0, false
		m.entries[d.ID] = memoryEntry{
			doc: d,
			vec: append([]float32(nil), embeddings[i]...),
		}
	}
	return nil
}

// Search scores every document matching filter and returns the best topK.
func (m *MemoryStore) Search(ctx context.Context, queryEmbedding []float32, filter Filter, topK int) ([]Document, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, e := range m.entries {
		if !filter.Matches(e.doc) {
			continue
		}
		d := e.doc
		d.Metadata = cloneMetadata(d.Metadata)
		d.Score = cosine(queryEmbedding, e.vec)
		out = append(out, d)
	}
	return topKByScore(out, topK), nil
}

// DeleteByFilter removes every document matching filter.
func (m *MemoryStore) DeleteByFilter(_ context.Context, filter Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if filter.Matches(e.doc) {
			delete(m.entries, id)
		}
	}
	return nil
}

// Count returns the number of documents matching filter.
func (m *MemoryStore) Count(_ context.Context, filter Filter) (int, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if filter.Matches(e.doc) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
