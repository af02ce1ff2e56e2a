package rag

import (
	"context"
	"errors"
	"testing"
)

// storeFactory returns a fresh, empty VectorStore for one subtest.
type storeFactory func(t *testing.T) VectorStore

func newMemory(t *testing.T) VectorStore {
	t.Helper()
	return NewMemoryStore()
}

func newSQLite(t *testing.T) VectorStore {
	t.Helper()
	s, err := OpenSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open sqlite index: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Seed fact ids. Qdrant only accepts UUID or integer point ids.
const (
	idAspirin  = "6f1c2a4e-0000-5000-8000-0000000000a1"
	idLee      = "6f1c2a4e-0000-5000-8000-0000000000a2"
	idKim      = "6f1c2a4e-0000-5000-8000-0000000000a3"
	idWarfarin = "6f1c2a4e-0000-5000-8000-0000000000b1"
)

func seed(t *testing.T, s VectorStore) {
	t.Helper()
	docs := []Document{
		{ID: idAspirin, OwnerID: "alice", RecordType: "medication", Content: "Medication: Aspirin", Metadata: map[string]string{"medication_id": "7"}},
		{ID: idLee, OwnerID: "alice", RecordType: "appointment", Content: "Appointment: Dr. Lee", Metadata: map[string]string{"appointment_id": "42"}},
		{ID: idKim, OwnerID: "alice", RecordType: "appointment", Content: "Appointment: Dr. Kim", Metadata: map[string]string{"appointment_id": "43"}},
		{ID: idWarfarin, OwnerID: "bob", RecordType: "medication", Content: "Medication: Warfarin", Metadata: map[string]string{"medication_id": "7"}},
	}
	vecs := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0.9, 0.1}, {1, 0, 0}}
	if err := s.Upsert(context.Background(), docs, vecs); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}
}

func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("search is owner scoped", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		seed(t, s)

		got, err := s.Search(context.Background(), []float32{1, 0, 0}, Filter{OwnerID: "alice"}, 10)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("want 3 alice docs, got %d", len(got))
		}
		for _, d := range got {
			if d.OwnerID != "alice" {
				t.Errorf("search leaked %s owned by %s", d.ID, d.OwnerID)
			}
		}
		if got[0].ID != idAspirin {
			t.Errorf("want aspirin ranked first, got %s", got[0].ID)
		}
		if got[0].Metadata["medication_id"] != "7" {
			t.Errorf("metadata not round-tripped: %v", got[0].Metadata)
		}
	})

	t.Run("search respects topK", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		seed(t, s)

		got, err := s.Search(context.Background(), []float32{0, 1, 0}, Filter{OwnerID: "alice"}, 2)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 2 || got[0].ID != idLee || got[1].ID != idKim {
			t.Fatalf("unexpected ranking: %+v", got)
		}
	})

	t.Run("missing owner is rejected", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		if _, err := s.Search(context.Background(), []float32{1, 0, 0}, Filter{}, 5); !errors.Is(err, ErrMissingOwner) {
			t.Errorf("search: want ErrMissingOwner, got %v", err)
		}
		if err := s.DeleteByFilter(context.Background(), Filter{RecordType: "medication"}); !errors.Is(err, ErrMissingOwner) {
			t.Errorf("delete: want ErrMissingOwner, got %v", err)
		}
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		seed(t, s)
		doc := Document{ID: idAspirin, OwnerID: "alice", RecordType: "medication", Content: "Medication: Aspirin", Metadata: map[string]string{"medication_id": "7"}}
		if err := s.Upsert(context.Background(), []Document{doc}, [][]float32{{1, 0, 0}}); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		n, err := s.Count(context.Background(), Filter{OwnerID: "alice", RecordType: "medication"})
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 1 {
			t.Errorf("want 1 medication fact after re-upsert, got %d", n)
		}
	})

	t.Run("delete by metadata touches one owner", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		seed(t, s)
		ctx := context.Background()

		err := s.DeleteByFilter(ctx, Filter{OwnerID: "alice", RecordType: "medication", MetadataKey: "medication_id", MetadataValue: "7"})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if n, _ := s.Count(ctx, Filter{OwnerID: "alice"}); n != 2 {
			t.Errorf("alice: want 2 remaining, got %d", n)
		}
		if n, _ := s.Count(ctx, Filter{OwnerID: "bob"}); n != 1 {
			t.Errorf("bob: want 1 remaining, got %d", n)
		}
	})

	t.Run("delete matching nothing succeeds", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		seed(t, s)

		err := s.DeleteByFilter(context.Background(), Filter{OwnerID: "alice", RecordType: "appointment", MetadataKey: "appointment_id", MetadataValue: "999"})
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if n, _ := s.Count(context.Background(), Filter{OwnerID: "alice"}); n != 3 {
			t.Errorf("want 3 remaining, got %d", n)
		}
	})

	t.Run("mismatched batch is rejected", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)

		err := s.Upsert(context.Background(), []Document{{ID: idAspirin, OwnerID: "alice"}}, nil)
		if err == nil {
			t.Fatal("expected error for missing embedding")
		}
	})
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, newMemory)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	runStoreSuite(t, newSQLite)
}

func TestEmbeddingEncoding(t *testing.T) {
	t.Parallel()

	in := []float32{0.25, -1.5, 3}
	out, err := decodeEmbedding(encodeEmbedding(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: want %v, got %v", i, in[i], out[i])
		}
	}
	if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
