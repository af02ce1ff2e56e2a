package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// RetrieverConfig tunes an OwnerRetriever.
type RetrieverConfig struct {
	// SearchK is the number of candidates pulled from the store (k1).
	// Defaults to 10.
	SearchK int

	// RerankK is the number of candidates kept after reranking (k2).
	// Defaults to 5 and is clamped to SearchK.
	RerankK int

	// CallTimeout bounds each embedder, store and reranker call.
	// Zero means the caller's context is used as-is.
	CallTimeout time.Duration
}

// Retrieval is the outcome of one owner-scoped retrieval.
type Retrieval struct {
	// Documents are the candidates in final order, at most RerankK long.
	Documents []Document

	// Candidates is the number of documents the similarity search returned.
	Candidates int

	// RerankFallback is true when a configured reranker failed and similarity
	// order was used instead.
	RerankFallback bool

	// Dropped counts search hits discarded because they belonged to another
	// owner. Non-zero indicates a broken store filter.
	Dropped int
}

// OwnerRetriever embeds a query, runs an owner-filtered similarity search and
// optionally reranks the hits. It never returns a document whose OwnerID
// differs from the requested owner.
type OwnerRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the filtered similarity search.
	store VectorStore

	// reranker reorders candidates; nil keeps similarity order.
	reranker Reranker

	// cfg holds the resolved limits.
	cfg RetrieverConfig

	// log receives fallback and isolation warnings.
	log *slog.Logger
}

// NewOwnerRetriever constructs an OwnerRetriever. reranker may be nil.
func NewOwnerRetriever(embedder Embedder, store VectorStore, reranker Reranker, cfg RetrieverConfig, log *slog.Logger) (*OwnerRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.SearchK <= 0 {
		cfg.SearchK = 10
	}
	if cfg.RerankK <= 0 {
		cfg.RerankK = 5
	}
	if cfg.RerankK > cfg.SearchK {
		cfg.RerankK = cfg.SearchK
	}
	if log == nil {
		log = slog.Default()
	}
	return &OwnerRetriever{
		embedder: embedder,
		store:    store,
		reranker: reranker,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Config returns the resolved retriever limits.
func (r *OwnerRetriever) Config() RetrieverConfig { return r.cfg }

func (r *OwnerRetriever) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.cfg.CallTimeout)
}

// Retrieve returns the owner's facts most relevant to query. Embedding and
// search failures are returned wrapped in ErrEmbedding and ErrIndex; reranker
// failures are absorbed and reported through Retrieval.RerankFallback.
func (r *OwnerRetriever) Retrieve(ctx context.Context, ownerID, query string) (*Retrieval, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrMissingOwner
	}

	ectx, cancel := r.callCtx(ctx)
	embeddings, err := r.embedder.Embed(ectx, []string{query})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned no vector for query", ErrEmbedding)
	}

	sctx, cancel := r.callCtx(ctx)
	hits, err := r.store.Search(sctx, embeddings[0], Filter{OwnerID: ownerID}, r.cfg.SearchK)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndex, err)
	}

	out := &Retrieval{}
	owned := hits[:0:0]
	for _, d := range hits {
		if d.OwnerID != ownerID {
			out.Dropped++
			continue
		}
		owned = append(owned, d)
	}
	if out.Dropped > 0 {
		r.log.Error("rag: search returned facts of another owner; discarded",
			slog.String("owner_id", ownerID),
			slog.Int("dropped", out.Dropped),
		)
	}
	out.Candidates = len(owned)
	if len(owned) == 0 {
		return out, nil
	}

	if r.reranker == nil {
		out.Documents = truncate(owned, r.cfg.RerankK)
		return out, nil
	}

	reranked, err := r.rerank(ctx, query, owned)
	if err != nil {
		r.log.Warn("rag: reranker failed; using similarity order",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
		out.RerankFallback = true
		out.Documents = truncate(owned, r.cfg.RerankK)
		return out, nil
	}
	out.Documents = reranked
	return out, nil
}

// rerank applies the reranker and validates its indices. Any malformed
// response is treated as a failure.
func (r *OwnerRetriever) rerank(ctx context.Context, query string, docs []Document) ([]Document, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	rctx, cancel := r.callCtx(ctx)
	defer cancel()
	results, err := r.reranker.Rerank(rctx, query, texts, r.cfg.RerankK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRerank, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrRerank)
	}

	seen := make(map[int]bool, len(results))
	out := make([]Document, 0, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, fmt.Errorf("%w: index %d out of range [0, %d)", ErrRerank, res.Index, len(docs))
		}
		if seen[res.Index] {
			continue
		}
		seen[res.Index] = true
		d := docs[res.Index]
		d.RerankScore = res.Score
		d.Reranked = true
		out = append(out, d)
	}
	return truncate(out, r.cfg.RerankK), nil
}

func truncate(docs []Document, k int) []Document {
	if len(docs) > k {
		return docs[:k]
	}
	return docs
}
