package rag

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

// Reserved payload keys. Every other payload key is document metadata.
const (
	payloadContent = "content"
	payloadSeq     = "seq"
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

// QdrantStore implements VectorStore backed by a Qdrant collection. Points
// get sequential numeric IDs so insertion order survives the round trip
// and can break score ties client side.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig

	// mu guards nextSeq.
	mu sync.Mutex

	// nextSeq is the ID assigned to the next appended point.
	nextSeq uint64
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and resumes numbering after any
// points already stored.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	n, err := store.Count(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	store.nextSeq = uint64(n) //nolint:gosec // count is never negative

	return store, nil
}

// Client exposes the underlying gRPC client for health probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("rag: qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Add appends entries as new points and waits for the write to be applied,
// so a following Search observes it.
func (s *QdrantStore) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	points := make([]*qdrant.PointStruct, 0, len(entries))
	seq := s.nextSeq
	for _, e := range entries {
		payload := map[string]any{
			payloadContent: e.Document.Content,
			payloadSeq:     int64(seq), //nolint:gosec // sequence fits in int64
		}
		for k, v := range e.Document.Metadata {
			if k == payloadContent || k == payloadSeq {
				continue
			}
			payload[k] = v
		}
		if e.Document.Source != "" {
			payload[MetaSource] = e.Document.Source
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(seq),
			Vectors: qdrant.NewVectors(e.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		})
		seq++
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("rag: qdrant: add failed: %w", err)
	}

	s.nextSeq = seq
	return nil
}

// Search performs a cosine similarity query and re-sorts equal scores by
// insertion sequence.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	if topK <= 0 {
		return []Document{}, nil
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("rag: qdrant: search failed: %w", err)
	}

	cands := make([]candidate, 0, len(results))
	for _, r := range results {
		doc := Document{
			ID:       strconv.FormatUint(r.GetId().GetNum(), 10),
			Score:    r.GetScore(),
			Metadata: make(map[string]string),
		}
		var seq int64
		for k, v := range r.GetPayload() {
			switch k {
			case payloadContent:
				doc.Content = v.GetStringValue()
			case payloadSeq:
				seq = v.GetIntegerValue()
			default:
				doc.Metadata[k] = v.GetStringValue()
			}
		}
		doc.Source = doc.Metadata[MetaSource]
		cands = append(cands, candidate{doc: doc, seq: seq})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].doc.Score != cands[j].doc.Score {
			return cands[i].doc.Score > cands[j].doc.Score
		}
		return cands[i].seq < cands[j].seq
	})

	docs := make([]Document, len(cands))
	for i, c := range cands {
		docs[i] = c.doc
	}
	return docs, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("rag: qdrant: count failed: %w", err)
	}
	return int(n), nil //nolint:gosec // collection sizes fit in int
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
