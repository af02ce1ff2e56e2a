// Package insight answers natural-language questions about one owner's
// indexed health facts. Retrieval is always scoped to the owner named by the
// request; the generator only ever sees that owner's facts.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthlens/healthlens-go/internal/audit"
	"github.com/healthlens/healthlens-go/internal/budget"
	"github.com/healthlens/healthlens-go/internal/rag"
	"github.com/healthlens/healthlens-go/internal/store"
)

// Config holds the collaborators and limits of an Engine.
type Config struct {
	// Retriever performs owner-scoped search and reranking. Required.
	Retriever *rag.OwnerRetriever

	// Generator produces the raw answer text. Required.
	Generator Generator

	// MaxContextTokens bounds the assembled prompt. Defaults to
	// budget.DefaultMaxContextTokens.
	MaxContextTokens int

	// CallTimeout bounds the generator call. Zero leaves the caller's
	// context in charge.
	CallTimeout time.Duration

	// History records answered requests. Optional.
	History store.HistoryStore

	// MetricsRegistry receives the engine metrics. Nil uses a private registry.
	MetricsRegistry prometheus.Registerer

	// Logger receives audit and diagnostic lines. Defaults to slog.Default.
	Logger *slog.Logger
}

// Engine runs the retrieval and generation pipeline. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	retriever *rag.OwnerRetriever
	generator Generator
	maxTokens int
	timeout   time.Duration
	history   store.HistoryStore
	metrics   *engineMetrics
	log       *slog.Logger
}

// New constructs an Engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("insight: retriever must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("insight: generator must not be nil")
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		retriever: cfg.Retriever,
		generator: cfg.Generator,
		maxTokens: cfg.MaxContextTokens,
		timeout:   cfg.CallTimeout,
		history:   cfg.History,
		metrics:   newEngineMetrics(cfg.MetricsRegistry),
		log:       log,
	}, nil
}

// Answer answers query for the account holder ownerID.
func (e *Engine) Answer(ctx context.Context, ownerID, query string) (*Answer, error) {
	return e.AnswerFor(ctx, ownerID, query, AudiencePatient, "")
}

// AnswerFor answers query about ownerID for the given audience. requesterID
// identifies the clinician for AudienceClinician and is only used for audit
// and history.
//
// An owner without facts gets NoDataAnswer and a nil error. Embedding, index
// and generation failures return *rag.InsightUnavailableError; reranker
// failures are absorbed by the retriever.
func (e *Engine) AnswerFor(ctx context.Context, ownerID, query string, audience Audience, requesterID string) (*Answer, error) {
	start := time.Now()
	if audience != AudienceClinician {
		audience = AudiencePatient
	}

	if strings.TrimSpace(ownerID) == "" {
		e.observe(audience, outcomeRejected, start)
		return nil, rag.ErrMissingOwner
	}
	query = strings.TrimSpace(query)
	if query == "" {
		e.observe(audience, outcomeRejected, start)
		return nil, rag.ErrEmptyQuery
	}

	audit.LogInsightQuery(ctx, e.log, ownerID, string(audience), requesterID, query)

	res, err := e.retriever.Retrieve(ctx, ownerID, query)
	if err != nil {
		e.observe(audience, outcomeUnavailable, start)
		return nil, &rag.InsightUnavailableError{Stage: "retrieve", Err: err}
	}
	if res.RerankFallback {
		e.metrics.rerankFallbacksTotal.Inc()
	}
	if res.Dropped > 0 {
		e.metrics.isolationDropsTotal.Add(float64(res.Dropped))
	}

	if len(res.Documents) == 0 {
		audit.LogInsightRetrieval(ctx, e.log, ownerID, 0, 0)
		e.metrics.contextDocuments.Observe(0)
		ans := NoDataAnswer(audience)
		e.record(ctx, ownerID, query, audience, requesterID, ans)
		e.observe(audience, outcomeNoData, start)
		return ans, nil
	}

	system := systemPromptFor(audience)
	contents := make([]string, len(res.Documents))
	for i, d := range res.Documents {
		contents[i] = d.Content
	}
	reserved := budget.EstimateMessages([]*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(buildUserPrompt("", query)),
	})
	contents = budget.FitContext(contents, reserved, e.maxTokens)

	audit.LogInsightRetrieval(ctx, e.log, ownerID, res.Candidates, len(contents))
	e.metrics.contextDocuments.Observe(float64(len(contents)))

	raw, err := e.generate(ctx, system, buildUserPrompt(buildContext(contents), query))
	if err != nil {
		e.observe(audience, outcomeUnavailable, start)
		return nil, &rag.InsightUnavailableError{Stage: "generate", Err: fmt.Errorf("%w: %w", rag.ErrGeneration, err)}
	}

	ans, err := parseAnswer(raw)
	if err != nil {
		e.log.Warn("insight: generator output rejected",
			slog.String("owner_id", ownerID),
			slog.Int("output_len", len(raw)),
			slog.String("error", err.Error()),
		)
		e.observe(audience, outcomeUnavailable, start)
		return nil, &rag.InsightUnavailableError{Stage: "parse", Err: err}
	}

	e.log.Info("insight: answered",
		slog.String("owner_id", ownerID),
		slog.String("audience", string(audience)),
		slog.Int("hits", res.Candidates),
		slog.Int("context_docs", len(contents)),
		slog.Bool("reranked", len(res.Documents) > 0 && res.Documents[0].Reranked),
		slog.Int("metrics", len(ans.Metrics)),
	)
	e.record(ctx, ownerID, query, audience, requesterID, ans)
	e.observe(audience, outcomeOK, start)
	return ans, nil
}

func (e *Engine) generate(ctx context.Context, system, user string) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.generator.Generate(ctx, system, user)
}

func (e *Engine) observe(audience Audience, outcome string, start time.Time) {
	e.metrics.requestsTotal.WithLabelValues(string(audience), outcome).Inc()
	e.metrics.durationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// record appends the answer to the history store. Failures are logged only:
// the answer has already been produced.
func (e *Engine) record(ctx context.Context, ownerID, query string, audience Audience, requesterID string, ans *Answer) {
	if e.history == nil {
		return
	}
	body, err := json.Marshal(ans)
	if err != nil {
		e.log.Warn("insight: failed to encode answer for history", slog.String("error", err.Error()))
		return
	}
	err = e.history.Append(ctx, store.Entry{
		OwnerID:     ownerID,
		Audience:    string(audience),
		RequesterID: requesterID,
		Query:       query,
		Answer:      string(body),
		NoData:      ans.NoData,
	})
	if err != nil {
		e.log.Warn("insight: failed to record history",
			slog.String("owner_id", ownerID),
			slog.String("error", err.Error()),
		)
	}
}
