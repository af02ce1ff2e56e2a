// Package ingestion keeps the fact index in step with the record store.
// Pipeline writes and retracts single facts; Indexer renders domain records
// into facts when they change; Rebuilder re-derives every fact of one owner.
//
// Index maintenance is best-effort: failures come back as an Outcome that
// callers may log and drop, so a down index never blocks a domain write.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// CallTimeout bounds each embedder and index call. Zero leaves the
	// caller's context in charge.
	CallTimeout time.Duration

	// MetricsRegistry receives the pipeline metrics. Nil uses a private
	// registry.
	MetricsRegistry prometheus.Registerer

	// Logger receives failure lines. Defaults to slog.Default.
	Logger *slog.Logger
}

// Outcome reports what a single ingest or retract did. Err is nil on success
// and otherwise a *rag.IngestionError.
type Outcome struct {
	// FactID is the id of the fact written by Ingest.
	FactID string

	// Skipped is true when Ingest had blank content and wrote nothing.
	Skipped bool

	// Err is the failure, if any.
	Err error
}

// OK reports whether the operation succeeded or was skipped.
func (o Outcome) OK() bool { return o.Err == nil }

// Outcome label values.
const (
	outcomeOK      = "ok"
	outcomeSkipped = "skipped"
	outcomeError   = "error"
)

// pipelineMetrics holds the Prometheus metrics owned by the Pipeline.
type pipelineMetrics struct {
	ingestTotal  *prometheus.CounterVec
	retractTotal *prometheus.CounterVec
}

func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &pipelineMetrics{
		ingestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthlens",
			Name:      "ingest_total",
			Help:      "Fact ingestions, partitioned by record type and outcome.",
		}, []string{"record_type", "outcome"}),
		retractTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthlens",
			Name:      "retract_total",
			Help:      "Fact retractions, partitioned by record type and outcome.",
		}, []string{"record_type", "outcome"}),
	}
}

// Pipeline embeds and upserts facts and deletes them by metadata. It holds no
// per-call state and is safe for concurrent use.
type Pipeline struct {
	// embedder converts fact content into dense vectors.
	embedder rag.Embedder

	// store persists the embedded facts.
	store rag.VectorStore

	// timeout bounds each external call.
	timeout time.Duration

	metrics *pipelineMetrics
	log     *slog.Logger
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		timeout:  cfg.CallTimeout,
		metrics:  newPipelineMetrics(cfg.MetricsRegistry),
		log:      log,
	}, nil
}

func (p *Pipeline) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Ingest embeds content and upserts it as one fact of ownerID. Blank content
// is a no-op. Identical (ownerID, t, content) always maps to the same fact
// id, so repeating a call never creates a duplicate.
func (p *Pipeline) Ingest(ctx context.Context, ownerID string, t facts.RecordType, content string, meta facts.Metadata) Outcome {
	if strings.TrimSpace(content) == "" {
		p.metrics.ingestTotal.WithLabelValues(string(t), outcomeSkipped).Inc()
		return Outcome{Skipped: true}
	}

	fail := func(err error) Outcome {
		p.metrics.ingestTotal.WithLabelValues(string(t), outcomeError).Inc()
		ierr := &rag.IngestionError{Op: "ingest", OwnerID: ownerID, RecordType: string(t), Err: err}
		p.log.Warn("ingestion: ingest failed",
			slog.String("owner_id", ownerID),
			slog.String("record_type", string(t)),
			slog.String("error", err.Error()),
		)
		return Outcome{Err: ierr}
	}

	f, err := facts.New(ownerID, t, content, meta)
	if err != nil {
		return fail(err)
	}

	ectx, cancel := p.callCtx(ctx)
	embeddings, err := p.embedder.Embed(ectx, []string{f.Content})
	cancel()
	if err != nil {
		return fail(fmt.Errorf("%w: %w", rag.ErrEmbedding, err))
	}
	if len(embeddings) != 1 || len(embeddings[0]) == 0 {
		return fail(fmt.Errorf("%w: embedder returned no vector", rag.ErrEmbedding))
	}

	doc := rag.Document{
		ID:         f.ID,
		OwnerID:    f.OwnerID,
		RecordType: string(f.RecordType),
		Content:    f.Content,
		Metadata:   f.Metadata,
	}
	uctx, cancel := p.callCtx(ctx)
	err = p.store.Upsert(uctx, []rag.Document{doc}, embeddings)
	cancel()
	if err != nil {
		return fail(fmt.Errorf("%w: %w", rag.ErrIndex, err))
	}

	p.metrics.ingestTotal.WithLabelValues(string(t), outcomeOK).Inc()
	p.log.Debug("ingestion: fact upserted",
		slog.String("owner_id", ownerID),
		slog.String("record_type", string(t)),
		slog.String("fact_id", f.ID),
	)
	return Outcome{FactID: f.ID}
}

// Retract deletes every fact of ownerID with record type t whose metadata
// key equals value. key must be declared for t. Matching nothing succeeds.
func (p *Pipeline) Retract(ctx context.Context, ownerID string, t facts.RecordType, key, value string) Outcome {
	fail := func(err error) Outcome {
		p.metrics.retractTotal.WithLabelValues(string(t), outcomeError).Inc()
		p.log.Warn("ingestion: retract failed",
			slog.String("owner_id", ownerID),
			slog.String("record_type", string(t)),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Outcome{Err: &rag.IngestionError{Op: "retract", OwnerID: ownerID, RecordType: string(t), Err: err}}
	}

	if strings.TrimSpace(ownerID) == "" {
		return fail(rag.ErrMissingOwner)
	}
	if err := facts.ValidateKey(t, key); err != nil {
		return fail(err)
	}
	if value == "" {
		return fail(fmt.Errorf("%w: retract value is empty", facts.ErrInvalidFact))
	}

	dctx, cancel := p.callCtx(ctx)
	err := p.store.DeleteByFilter(dctx, rag.Filter{
		OwnerID:       ownerID,
		RecordType:    string(t),
		MetadataKey:   key,
		MetadataValue: value,
	})
	cancel()
	if err != nil {
		return fail(fmt.Errorf("%w: %w", rag.ErrIndex, err))
	}

	p.metrics.retractTotal.WithLabelValues(string(t), outcomeOK).Inc()
	p.log.Debug("ingestion: facts retracted",
		slog.String("owner_id", ownerID),
		slog.String("record_type", string(t)),
		slog.String("key", key),
		slog.String("value", value),
	)
	return Outcome{}
}

// RetractType deletes every fact of ownerID with record type t.
func (p *Pipeline) RetractType(ctx context.Context, ownerID string, t facts.RecordType) Outcome {
	if strings.TrimSpace(ownerID) == "" {
		p.metrics.retractTotal.WithLabelValues(string(t), outcomeError).Inc()
		return Outcome{Err: &rag.IngestionError{Op: "retract", OwnerID: ownerID, RecordType: string(t), Err: rag.ErrMissingOwner}}
	}

	dctx, cancel := p.callCtx(ctx)
	err := p.store.DeleteByFilter(dctx, rag.Filter{OwnerID: ownerID, RecordType: string(t)})
	cancel()
	if err != nil {
		p.metrics.retractTotal.WithLabelValues(string(t), outcomeError).Inc()
		p.log.Warn("ingestion: retract failed",
			slog.String("owner_id", ownerID),
			slog.String("record_type", string(t)),
			slog.String("error", err.Error()),
		)
		return Outcome{Err: &rag.IngestionError{Op: "retract", OwnerID: ownerID, RecordType: string(t), Err: fmt.Errorf("%w: %w", rag.ErrIndex, err)}}
	}
	p.metrics.retractTotal.WithLabelValues(string(t), outcomeOK).Inc()
	return Outcome{}
}

// Replace retracts the facts previously derived from the same source record
// and ingests content in their place, so an edited record does not leave its
// old fact behind. The source record is identified by the record type's
// retract key; without it in meta Replace is a plain Ingest.
func (p *Pipeline) Replace(ctx context.Context, ownerID string, t facts.RecordType, content string, meta facts.Metadata) Outcome {
	key := t.RetractKey()
	if key == "" || meta[key] == "" {
		return p.Ingest(ctx, ownerID, t, content, meta)
	}
	if out := p.Retract(ctx, ownerID, t, key, meta[key]); !out.OK() {
		return out
	}
	return p.Ingest(ctx, ownerID, t, content, meta)
}

// failSource reports a record store read failure as an ingest outcome.
func (p *Pipeline) failSource(ownerID string, t facts.RecordType, err error) Outcome {
	p.metrics.ingestTotal.WithLabelValues(string(t), outcomeError).Inc()
	p.log.Warn("ingestion: record source read failed",
		slog.String("owner_id", ownerID),
		slog.String("record_type", string(t)),
		slog.String("error", err.Error()),
	)
	return Outcome{Err: &rag.IngestionError{Op: "read", OwnerID: ownerID, RecordType: string(t), Err: err}}
}
