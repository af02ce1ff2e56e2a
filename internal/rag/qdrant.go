package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant collection. Owner id,
// record type and content live in the point payload next to the flattened
// metadata keys, and owner_id is indexed as a keyword so filtered searches
// stay cheap as the collection grows.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// Payload field names. They match the reserved names in the facts package.
const (
	payloadOwnerID    = "owner_id"
	payloadRecordType = "record_type"
	payloadContent    = "content"
)

// NewQdrantStore connects to Qdrant, creates the collection and its payload
// indexes when missing, and returns a ready-to-use store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("qdrant: config must not be nil")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "health_insights"
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be set")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

// Client exposes the underlying client for health checks.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.cfg.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.cfg.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
		}
	}

	// Creating an index that already exists is accepted by Qdrant.
	for _, field := range []string{payloadOwnerID, payloadRecordType} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("qdrant: failed to index payload field %q: %w", field, err)
		}
	}
	return nil
}

// qdrantFilter translates f into Qdrant must-conditions.
func qdrantFilter(f Filter) (*qdrant.Filter, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	must := []*qdrant.Condition{qdrant.NewMatch(payloadOwnerID, f.OwnerID)}
	if f.RecordType != "" {
		must = append(must, qdrant.NewMatch(payloadRecordType, f.RecordType))
	}
	if f.MetadataKey != "" {
		must = append(must, qdrant.NewMatch(f.MetadataKey, f.MetadataValue))
	}
	return &qdrant.Filter{Must: must}, nil
}

// Upsert writes docs with their vectors and waits for the write to be applied
// so a search issued right after sees it.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if err := checkBatch(docs, embeddings); err != nil {
		return err
	}
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		payload := make(map[string]any, len(doc.Metadata)+3)
		for k, v := range doc.Metadata {
			payload[k] = v
		}
		payload[payloadOwnerID] = doc.OwnerID
		payload[payloadRecordType] = doc.RecordType
		payload[payloadContent] = doc.Content

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Search performs a filtered cosine similarity search.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, filter Filter, topK int) ([]Document, error) {
	qf, err := qdrantFilter(filter)
	if err != nil {
		return nil, err
	}
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Filter:         qf,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, documentFromPayload(r.GetId().GetUuid(), r.GetScore(), r.GetPayload()))
	}
	return docs, nil
}

// documentFromPayload rebuilds a Document from a point payload.
func documentFromPayload(id string, score float32, payload map[string]*qdrant.Value) Document {
	doc := Document{ID: id, Score: score, Metadata: make(map[string]string)}
	for k, v := range payload {
		switch k {
		case payloadOwnerID:
			doc.OwnerID = v.GetStringValue()
		case payloadRecordType:
			doc.RecordType = v.GetStringValue()
		case payloadContent:
			doc.Content = v.GetStringValue()
		default:
			if _, ok := v.GetKind().(*qdrant.Value_IntegerValue); ok {
				doc.Metadata[k] = fmt.Sprintf("%d", v.GetIntegerValue())
				continue
			}
			doc.Metadata[k] = v.GetStringValue()
		}
	}
	return doc
}

// DeleteByFilter removes every point matching filter.
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	qf, err := qdrantFilter(filter)
	if err != nil {
		return err
	}
	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(qf),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// Count returns the exact number of points matching filter.
func (s *QdrantStore) Count(ctx context.Context, filter Filter) (int, error) {
	qf, err := qdrantFilter(filter)
	if err != nil {
		return 0, err
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         qf,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
