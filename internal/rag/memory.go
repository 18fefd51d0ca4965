package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// MemoryStore is an ephemeral VectorStore held entirely in process memory.
// Search is a brute-force cosine scan, which is adequate for a single
// project's worth of chunks.
type MemoryStore struct {
	// mu guards entries and dims.
	mu sync.RWMutex
	// entries holds every stored record in insertion order.
	entries []Entry
	// dims is the embedding dimension fixed by the first Add. Zero while empty.
	dims int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add appends entries in order. The first stored embedding fixes the
// dimension; later entries of a different length are rejected.
func (s *MemoryStore) Add(_ context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dims := s.dims
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("rag: memory add: entry %d has an empty embedding", i)
		}
		if dims == 0 {
			dims = len(e.Embedding)
		}
		if len(e.Embedding) != dims {
			return fmt.Errorf("rag: memory add: entry %d has dimension %d, store has %d", i, len(e.Embedding), dims)
		}
	}

	for _, e := range entries {
		doc := e.Document
		doc.Metadata = cloneMetadata(e.Document.Metadata)
		doc.ID = strconv.Itoa(len(s.entries))
		doc.Score = 0
		vec := make([]float32, len(e.Embedding))
		copy(vec, e.Embedding)
		s.entries = append(s.entries, Entry{Document: doc, Embedding: vec})
	}
	s.dims = dims
	return nil
}

// Search ranks every stored entry against the query embedding.
func (s *MemoryStore) Search(_ context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.entries) == 0 || topK <= 0 {
		return []Document{}, nil
	}
	if len(queryEmbedding) != s.dims {
		return nil, fmt.Errorf("rag: memory search: query dimension %d, store has %d", len(queryEmbedding), s.dims)
	}

	cands := make([]candidate, len(s.entries))
	for i, e := range s.entries {
		doc := e.Document
		doc.Metadata = cloneMetadata(e.Document.Metadata)
		doc.Score = Cosine(queryEmbedding, e.Embedding)
		cands[i] = candidate{doc: doc, seq: int64(i)}
	}
	return rankTopK(cands, topK), nil
}

// Count returns the number of stored entries.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Close is a no-op; the store is discarded with the process.
func (s *MemoryStore) Close() error { return nil }
