package rag

import (
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

// matches flattens the keyword must-conditions of f into key -> value.
func matches(t *testing.T, f *qdrant.Filter) map[string]string {
	t.Helper()
	out := make(map[string]string, len(f.GetMust()))
	for _, c := range f.GetMust() {
		field := c.GetField()
		if field == nil {
			t.Fatalf("unexpected non-field condition %v", c)
		}
		out[field.GetKey()] = field.GetMatch().GetKeyword()
	}
	return out
}

func TestQdrantFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter Filter
		want   map[string]string
	}{
		{
			name:   "owner only",
			filter: Filter{OwnerID: "alice"},
			want:   map[string]string{"owner_id": "alice"},
		},
		{
			name:   "owner and record type",
			filter: Filter{OwnerID: "alice", RecordType: "medication"},
			want:   map[string]string{"owner_id": "alice", "record_type": "medication"},
		},
		{
			name:   "owner, record type and metadata",
			filter: Filter{OwnerID: "alice", RecordType: "appointment", MetadataKey: "appointment_id", MetadataValue: "42"},
			want:   map[string]string{"owner_id": "alice", "record_type": "appointment", "appointment_id": "42"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			qf, err := qdrantFilter(tc.filter)
			if err != nil {
				t.Fatalf("qdrantFilter: %v", err)
			}
			if len(qf.GetShould()) != 0 || len(qf.GetMustNot()) != 0 {
				t.Errorf("only must-conditions expected, got %v", qf)
			}
			got := matches(t, qf)
			if len(got) != len(tc.want) {
				t.Fatalf("want %d conditions, got %v", len(tc.want), got)
			}
			for k, v := range tc.want {
				if got[k] != v {
					t.Errorf("condition %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestQdrantFilter_RejectsMissingOwner(t *testing.T) {
	t.Parallel()

	for _, f := range []Filter{
		{},
		{OwnerID: "  ", RecordType: "medication"},
		{RecordType: "appointment", MetadataKey: "appointment_id", MetadataValue: "42"},
	} {
		if _, err := qdrantFilter(f); !errors.Is(err, ErrMissingOwner) {
			t.Errorf("qdrantFilter(%+v): want ErrMissingOwner, got %v", f, err)
		}
	}
	if _, err := qdrantFilter(Filter{OwnerID: "alice", MetadataKey: "appointment_id"}); err == nil {
		t.Error("want error for metadata key without value")
	}
}

func TestDocumentFromPayload(t *testing.T) {
	t.Parallel()

	payload := map[string]*qdrant.Value{
		"owner_id":       {Kind: &qdrant.Value_StringValue{StringValue: "alice"}},
		"record_type":    {Kind: &qdrant.Value_StringValue{StringValue: "appointment"}},
		"content":        {Kind: &qdrant.Value_StringValue{StringValue: "Appointment: Dr. Lee"}},
		"appointment_id": {Kind: &qdrant.Value_IntegerValue{IntegerValue: 42}},
		"last_date":      {Kind: &qdrant.Value_StringValue{StringValue: "2026-05-02"}},
	}
	doc := documentFromPayload(idLee, 0.75, payload)

	if doc.ID != idLee || doc.Score != 0.75 {
		t.Errorf("id/score not carried: %+v", doc)
	}
	if doc.OwnerID != "alice" || doc.RecordType != "appointment" || doc.Content != "Appointment: Dr. Lee" {
		t.Errorf("reserved fields not decoded: %+v", doc)
	}
	if doc.Metadata["appointment_id"] != "42" {
		t.Errorf("integer metadata = %q, want 42", doc.Metadata["appointment_id"])
	}
	if doc.Metadata["last_date"] != "2026-05-02" {
		t.Errorf("string metadata = %q", doc.Metadata["last_date"])
	}
	for _, k := range []string{"owner_id", "record_type", "content"} {
		if _, ok := doc.Metadata[k]; ok {
			t.Errorf("reserved field %s leaked into metadata", k)
		}
	}
}
