package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthlens/healthlens-go/internal/embedder"
	"github.com/healthlens/healthlens-go/internal/ingestion"
	"github.com/healthlens/healthlens-go/internal/insight"
	"github.com/healthlens/healthlens-go/internal/provider"
	"github.com/healthlens/healthlens-go/internal/rag"
	"github.com/healthlens/healthlens-go/internal/records"
	"github.com/healthlens/healthlens-go/internal/rerank"
	"github.com/healthlens/healthlens-go/internal/server"
	"github.com/healthlens/healthlens-go/internal/store"
)

// stack holds the components shared by the commands and closes them in
// reverse order of opening.
type stack struct {
	log *slog.Logger

	// embedder is shared by ingestion and retrieval so facts and queries
	// live in the same vector space.
	embedder rag.Embedder

	index     rag.VectorStore
	indexName string
	// qdrant is set when the index backend is Qdrant; used for readiness.
	qdrant *rag.QdrantStore
	// indexDB is set when the index backend is SQLite; used for readiness.
	indexDB *rag.SQLiteStore

	records *records.SQLiteStore
	history *store.SQLiteStore

	closers []func() error
}

func (s *stack) onClose(fn func() error) { s.closers = append(s.closers, fn) }

// Close releases every opened component.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn("close failed", slog.Any("error", err))
		}
	}
}

// openIndexStack validates the embedding backend and opens the embedder and
// the vector index.
func openIndexStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	st := &stack{log: log}

	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	st.embedder = emb
	log.Info("embedder initialised", slog.String("provider", embedder.Backend()))

	if err := st.openIndex(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

// openIndex selects the vector index: INDEX_BACKEND when set, otherwise
// Qdrant when QDRANT_HOST is set, otherwise the local SQLite index.
func (st *stack) openIndex(ctx context.Context) error {
	backend := os.Getenv("INDEX_BACKEND")
	if backend == "" {
		backend = "sqlite"
		if os.Getenv("QDRANT_HOST") != "" {
			backend = "qdrant"
		}
	}

	switch backend {
	case "qdrant":
		host := getEnvOrDefault("QDRANT_HOST", "localhost")
		port := getEnvInt("QDRANT_PORT", 6334)
		collection := getEnvOrDefault("QDRANT_COLLECTION", "healthlens-facts")
		q, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: collection,
			VectorSize: uint64(embedder.DefaultDimensions(embedder.Backend())), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
		}
		st.index, st.qdrant = q, q
		st.onClose(q.Close)
		st.log.Info("index ready", slog.String("backend", "qdrant"), slog.String("host", host), slog.String("collection", collection))

	case "sqlite":
		path := os.Getenv("HEALTHLENS_INDEX_DB")
		if path == "" {
			p, err := defaultDataPath("index.db")
			if err != nil {
				return err
			}
			path = p
		}
		db, err := rag.OpenSQLiteStore(path)
		if err != nil {
			return err
		}
		st.index, st.indexDB = db, db
		st.onClose(db.Close)
		st.log.Info("index ready", slog.String("backend", "sqlite"), slog.String("path", path))

	case "memory":
		st.index = rag.NewMemoryStore()
		st.log.Warn("index is in memory; facts are lost on exit", slog.String("backend", "memory"))

	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q (valid: qdrant, sqlite, memory)", backend)
	}
	st.indexName = backend
	return nil
}

// openRecords opens the domain record store.
func (st *stack) openRecords() error {
	path := os.Getenv("HEALTHLENS_RECORDS_DB")
	if path == "" {
		p, err := records.DefaultDBPath()
		if err != nil {
			return err
		}
		path = p
	}
	rs, err := records.Open(path)
	if err != nil {
		return err
	}
	st.records = rs
	st.onClose(rs.Close)
	st.log.Info("records store opened", slog.String("path", path))
	return nil
}

// openHistory opens the insight history store. HEALTHLENS_HISTORY_DB=disabled
// turns history off; failures to open are logged and history is skipped.
func (st *stack) openHistory() {
	path := os.Getenv("HEALTHLENS_HISTORY_DB")
	if path == "disabled" {
		st.log.Info("history: disabled via HEALTHLENS_HISTORY_DB=disabled")
		return
	}
	if path == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			st.log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return
		}
		path = p
	}
	hs, err := store.Open(path)
	if err != nil {
		st.log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return
	}
	st.history = hs
	st.onClose(hs.Close)
	st.log.Info("history: store opened", slog.String("path", path))
}

// newPipeline builds the ingestion pipeline over the stack's index.
func (st *stack) newPipeline(reg prometheus.Registerer) (*ingestion.Pipeline, error) {
	return ingestion.NewPipeline(st.embedder, st.index, &ingestion.Config{
		CallTimeout:     getEnvDuration("INSIGHT_CALL_TIMEOUT", 30*time.Second),
		MetricsRegistry: reg,
		Logger:          st.log,
	})
}

// newIndexer builds the record hooks; openRecords must have been called.
func (st *stack) newIndexer(reg prometheus.Registerer) (*ingestion.Indexer, error) {
	p, err := st.newPipeline(reg)
	if err != nil {
		return nil, err
	}
	return ingestion.NewIndexer(p, st.records, os.Getenv("HEALTHLENS_UPLOAD_DIR"), st.log)
}

// engineParts is what newEngine builds besides the engine itself; serve
// needs the chat model for its readiness probe.
type engineParts struct {
	engine      *insight.Engine
	chatModel   model.BaseChatModel
	providerCfg *provider.Config
}

// newEngine builds the chat model, reranker, retriever and insight engine.
func (st *stack) newEngine(ctx context.Context, reg prometheus.Registerer) (*engineParts, error) {
	chatModel, providerCfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	st.log.Info("provider initialised",
		slog.String("provider", string(providerCfg.Backend)),
		slog.String("model", providerCfg.ModelName()),
	)

	rr, err := rerank.NewFromEnv()
	if err != nil {
		return nil, err
	}
	if rr == nil {
		st.log.Info("reranking disabled; similarity order is used")
	}

	timeout := getEnvDuration("INSIGHT_CALL_TIMEOUT", 30*time.Second)
	retriever, err := rag.NewOwnerRetriever(st.embedder, st.index, rr, rag.RetrieverConfig{
		SearchK:     getEnvInt("INSIGHT_SEARCH_K", 10),
		RerankK:     getEnvInt("INSIGHT_RERANK_K", 5),
		CallTimeout: timeout,
	}, st.log)
	if err != nil {
		return nil, err
	}

	gen, err := insight.NewChatGenerator(chatModel)
	if err != nil {
		return nil, err
	}

	cfg := insight.Config{
		Retriever:        retriever,
		Generator:        gen,
		MaxContextTokens: getEnvInt("INSIGHT_MAX_CONTEXT_TOKENS", 6000),
		CallTimeout:      timeout,
		MetricsRegistry:  reg,
		Logger:           st.log,
	}
	if st.history != nil {
		cfg.History = st.history
	}
	engine, err := insight.New(cfg)
	if err != nil {
		return nil, err
	}
	return &engineParts{engine: engine, chatModel: chatModel, providerCfg: providerCfg}, nil
}

// pingers returns the readiness probes for every opened dependency.
func (st *stack) pingers(parts *engineParts) []server.Pinger {
	var out []server.Pinger
	if parts != nil {
		out = append(out, server.NewLLMPinger(parts.chatModel, provider.HealthCheckFor(parts.providerCfg), string(parts.providerCfg.Backend)))
	}
	if st.qdrant != nil {
		out = append(out, server.NewQdrantPinger(st.qdrant.Client()))
	}
	if st.indexDB != nil {
		out = append(out, server.NewFuncPinger("index", st.indexDB.Ping))
	}
	if st.records != nil {
		out = append(out, server.NewFuncPinger("records", st.records.Ping))
	}
	return out
}

// defaultDataPath returns ~/.healthlens/<name>, creating the directory.
func defaultDataPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".healthlens")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, name), nil
}

// getEnvOrDefault returns the value of key, or fallback if unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns key parsed as an int, or fallback when unset or invalid.
func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// getEnvDuration returns key parsed as a time.Duration, or fallback when
// unset or invalid.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// errOwnerRequired is returned by commands that need --owner.
var errOwnerRequired = errors.New("--owner is required")
