package ingestion

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthlens/healthlens-go/internal/facts"
	"github.com/healthlens/healthlens-go/internal/rag"
)

// hashEmbedder derives a small deterministic vector from the text.
type hashEmbedder struct {
	err   error
	calls atomic.Int64
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		f := fnv.New32a()
		_, _ = f.Write([]byte(t))
		s := f.Sum32()
		out[i] = []float32{float32(s&0xff) + 1, float32(s>>8&0xff) + 1, float32(s>>16&0xff) + 1}
	}
	return out, nil
}

// brokenStore fails every write.
type brokenStore struct{ *rag.MemoryStore }

func (brokenStore) Upsert(context.Context, []rag.Document, [][]float32) error {
	return errors.New("qdrant: connection reset")
}

func (brokenStore) DeleteByFilter(context.Context, rag.Filter) error {
	return errors.New("qdrant: connection reset")
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestPipeline(t *testing.T, emb rag.Embedder, store rag.VectorStore) (*Pipeline, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	p, err := NewPipeline(emb, store, &Config{MetricsRegistry: reg, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, reg
}

func countFacts(t *testing.T, s rag.VectorStore, f rag.Filter) int {
	t.Helper()
	n, err := s.Count(context.Background(), f)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()
	if _, err := NewPipeline(nil, rag.NewMemoryStore(), nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewPipeline(&hashEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestIngest_Idempotent(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	p, _ := newTestPipeline(t, &hashEmbedder{}, store)
	ctx := context.Background()

	meta := facts.Metadata{facts.KeyMedicationID: "5"}
	first := p.Ingest(ctx, "2", facts.Medication, "Medication: Aspirin, Dosage: 100mg", meta)
	second := p.Ingest(ctx, "2", facts.Medication, "Medication: Aspirin, Dosage: 100mg", meta)
	if !first.OK() || !second.OK() {
		t.Fatalf("ingest failed: %v / %v", first.Err, second.Err)
	}
	if first.FactID != second.FactID {
		t.Errorf("identical content produced ids %s and %s", first.FactID, second.FactID)
	}
	if n := countFacts(t, store, rag.Filter{OwnerID: "2", RecordType: "medication"}); n != 1 {
		t.Errorf("want exactly 1 fact, got %d", n)
	}
}

func TestIngest_BlankContentIsNoop(t *testing.T) {
	t.Parallel()
	emb := &hashEmbedder{}
	store := rag.NewMemoryStore()
	p, _ := newTestPipeline(t, emb, store)

	for _, content := range []string{"", "   \n\t"} {
		out := p.Ingest(context.Background(), "1", facts.HealthRecord, content, facts.Metadata{facts.KeyRecordID: "3"})
		if !out.OK() || !out.Skipped {
			t.Errorf("content %q: want skipped without error, got %+v", content, out)
		}
	}
	if n := emb.calls.Load(); n != 0 {
		t.Errorf("blank content must not reach the embedder, got %d calls", n)
	}
	if n := countFacts(t, store, rag.Filter{OwnerID: "1"}); n != 0 {
		t.Errorf("want no writes, got %d facts", n)
	}
}

func TestIngest_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		emb    *hashEmbedder
		store  rag.VectorStore
		meta   facts.Metadata
		wantIs error
	}{
		{"embedder down", &hashEmbedder{err: errors.New("ollama: 503")}, rag.NewMemoryStore(), facts.Metadata{facts.KeyAppointmentID: "1"}, rag.ErrEmbedding},
		{"index down", &hashEmbedder{}, brokenStore{rag.NewMemoryStore()}, facts.Metadata{facts.KeyAppointmentID: "1"}, rag.ErrIndex},
		{"undeclared key", &hashEmbedder{}, rag.NewMemoryStore(), facts.Metadata{facts.KeyAppointmentID: "1", "doctor": "Lee"}, facts.ErrUnknownMetadataKey},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p, _ := newTestPipeline(t, tc.emb, tc.store)

			out := p.Ingest(context.Background(), "1", facts.Appointment, "Appointment: Dr. Lee", tc.meta)
			var ierr *rag.IngestionError
			if !errors.As(out.Err, &ierr) {
				t.Fatalf("want *IngestionError, got %T %v", out.Err, out.Err)
			}
			if ierr.Op != "ingest" || ierr.OwnerID != "1" || ierr.RecordType != "appointment" {
				t.Errorf("unexpected error fields %+v", ierr)
			}
			if !errors.Is(out.Err, tc.wantIs) {
				t.Errorf("want errors.Is(%v), got %v", tc.wantIs, out.Err)
			}
		})
	}
}

func TestRetract_Appointment42(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	p, _ := newTestPipeline(t, &hashEmbedder{}, store)
	ctx := context.Background()

	p.Ingest(ctx, "1", facts.Appointment, "Appointment: Dr. Lee (Cardiology), Date: 2026-05-02 09:30, Reason: follow-up", facts.Metadata{facts.KeyAppointmentID: "42"})
	p.Ingest(ctx, "1", facts.Appointment, "Appointment: Dr. Kim (Dermatology), Date: 2026-06-10 14:00, Reason: rash", facts.Metadata{facts.KeyAppointmentID: "43"})
	p.Ingest(ctx, "2", facts.Appointment, "Appointment: Dr. Lee (Cardiology), Date: 2026-05-02 10:00, Reason: checkup", facts.Metadata{facts.KeyAppointmentID: "42"})

	if out := p.Retract(ctx, "1", facts.Appointment, facts.KeyAppointmentID, "42"); !out.OK() {
		t.Fatalf("retract: %v", out.Err)
	}

	hits, err := store.Search(ctx, []float32{1, 1, 1}, rag.Filter{OwnerID: "1", RecordType: "appointment"}, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, h := range hits {
		if h.Metadata[facts.KeyAppointmentID] == "42" {
			t.Errorf("retracted appointment still surfaces: %q", h.Content)
		}
	}
	if len(hits) != 1 {
		t.Errorf("want appointment 43 to remain, got %d hits", len(hits))
	}
	if n := countFacts(t, store, rag.Filter{OwnerID: "2"}); n != 1 {
		t.Errorf("another owner's appointment 42 must survive, got %d", n)
	}
}

func TestRetract_Validation(t *testing.T) {
	t.Parallel()
	p, _ := newTestPipeline(t, &hashEmbedder{}, rag.NewMemoryStore())
	ctx := context.Background()

	if out := p.Retract(ctx, "1", facts.Appointment, "doctor_name", "Lee"); !errors.Is(out.Err, facts.ErrUnknownMetadataKey) {
		t.Errorf("want ErrUnknownMetadataKey, got %v", out.Err)
	}
	if out := p.Retract(ctx, "", facts.Appointment, facts.KeyAppointmentID, "1"); !errors.Is(out.Err, rag.ErrMissingOwner) {
		t.Errorf("want ErrMissingOwner, got %v", out.Err)
	}
	if out := p.Retract(ctx, "1", facts.Appointment, facts.KeyAppointmentID, ""); out.OK() {
		t.Error("want error for empty value")
	}

	bp, _ := newTestPipeline(t, &hashEmbedder{}, brokenStore{rag.NewMemoryStore()})
	if out := bp.Retract(ctx, "1", facts.Appointment, facts.KeyAppointmentID, "1"); !errors.Is(out.Err, rag.ErrIndex) {
		t.Errorf("want ErrIndex, got %v", out.Err)
	}
}

func TestRetractType_ClearsOneTypeOfOneOwner(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	p, _ := newTestPipeline(t, &hashEmbedder{}, store)
	ctx := context.Background()

	p.Ingest(ctx, "1", facts.Appointment, "Appointment: Dr. Lee", facts.Metadata{facts.KeyAppointmentID: "42"})
	p.Ingest(ctx, "1", facts.Medication, "Medication: Aspirin, Dosage: 100mg", facts.Metadata{facts.KeyMedicationID: "7"})
	p.Ingest(ctx, "2", facts.Appointment, "Appointment: Dr. Kim", facts.Metadata{facts.KeyAppointmentID: "42"})

	if out := p.RetractType(ctx, "1", facts.Appointment); !out.OK() {
		t.Fatalf("retract type: %v", out.Err)
	}
	if n := countFacts(t, store, rag.Filter{OwnerID: "1", RecordType: "appointment"}); n != 0 {
		t.Errorf("want no appointments for owner 1, got %d", n)
	}
	if n := countFacts(t, store, rag.Filter{OwnerID: "1", RecordType: "medication"}); n != 1 {
		t.Errorf("medication must survive, got %d", n)
	}
	if n := countFacts(t, store, rag.Filter{OwnerID: "2"}); n != 1 {
		t.Errorf("owner 2 must be untouched, got %d", n)
	}
	if out := p.RetractType(ctx, " ", facts.Appointment); !errors.Is(out.Err, rag.ErrMissingOwner) {
		t.Errorf("want ErrMissingOwner, got %v", out.Err)
	}
}

func TestReplace_SupersedesEditedRecord(t *testing.T) {
	t.Parallel()
	store := rag.NewMemoryStore()
	p, _ := newTestPipeline(t, &hashEmbedder{}, store)
	ctx := context.Background()
	meta := facts.Metadata{facts.KeyAppointmentID: "7"}

	old := p.Replace(ctx, "1", facts.Appointment, "Appointment: Dr. Lee, Reason: headache", meta)
	edited := p.Replace(ctx, "1", facts.Appointment, "Appointment: Dr. Lee, Reason: migraine", meta)
	if !old.OK() || !edited.OK() || old.FactID == edited.FactID {
		t.Fatalf("unexpected outcomes %+v %+v", old, edited)
	}

	hits, _ := store.Search(ctx, []float32{1, 1, 1}, rag.Filter{OwnerID: "1"}, 10)
	if len(hits) != 1 || hits[0].ID != edited.FactID {
		t.Errorf("want only the edited fact, got %+v", hits)
	}
}

func TestPipeline_Metrics(t *testing.T) {
	t.Parallel()
	p, reg := newTestPipeline(t, &hashEmbedder{}, rag.NewMemoryStore())
	ctx := context.Background()

	p.Ingest(ctx, "1", facts.Medication, "Medication: Aspirin", facts.Metadata{facts.KeyMedicationID: "1"})
	p.Ingest(ctx, "1", facts.Medication, "", facts.Metadata{facts.KeyMedicationID: "1"})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	got := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "healthlens_ingest_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "outcome" {
					got[lp.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	if got[outcomeOK] != 1 || got[outcomeSkipped] != 1 {
		t.Errorf("unexpected ingest counters %v", got)
	}
}
