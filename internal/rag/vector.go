package rag

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// encodeEmbedding packs vec as little-endian IEEE 754 float32 values. The
// length is recovered from the blob size on decode.
func encodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// decodeEmbedding is the inverse of encodeEmbedding.
func decodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("rag: invalid embedding blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}

// cosine returns the cosine similarity of a and b. Mismatched lengths and
// zero-magnitude vectors score 0 so they sort last instead of failing a search.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// topKByScore sorts docs by descending Score, breaking ties on ID for a
// stable order, and truncates to k.
func topKByScore(docs []Document, k int) []Document {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].ID < docs[j].ID
	})
	if k >= 0 && len(docs) > k {
		docs = docs[:k]
	}
	return docs
}

// checkBatch validates the parallel docs/embeddings slices passed to Upsert.
func checkBatch(docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("rag: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("rag: document %d has no id", i)
		}
		if d.OwnerID == "" {
			return fmt.Errorf("rag: document %s: %w", d.ID, ErrMissingOwner)
		}
		if len(embeddings[i]) == 0 {
			return fmt.Errorf("rag: document %s has an empty embedding", d.ID)
		}
	}
	return nil
}

func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
