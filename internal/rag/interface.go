// Package rag defines the interfaces for retrieval components: vector
// storage, document retrieval, and embedding. Concrete implementations
// (in-memory, SQLite directory, Qdrant) satisfy these interfaces so the
// knowledge and flow layers never depend on a specific backend.
//
// Stores are append-only for the lifetime of a session: entries are never
// replaced, deduplicated, or deleted.
package rag

import (
	"context"
)

// Metadata keys shared across packages.
const (
	// MetaSource is the origin path of a chunk, or "execution_result" for
	// feedback documents.
	MetaSource = "source"
	// MetaChunkIndex is the zero-based position of a chunk within its parent.
	MetaChunkIndex = "chunk_index"
	// MetaStartIndex is the rune offset of a chunk within its parent.
	MetaStartIndex = "start_index"
	// MetaAgent names the agent that produced a feedback document.
	MetaAgent = "agent"
	// MetaStep names the flow step that produced a feedback document.
	MetaStep = "step"
)

// Document represents a unit of retrieved or stored knowledge.
type Document struct {
	// ID is the backend-assigned identifier. Empty until stored.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the origin path of the document. It mirrors
	// Metadata[MetaSource] when present.
	Source string

	// Metadata holds arbitrary key-value pairs (source, chunk_index, agent, step, ...).
	Metadata map[string]string

	// Score is the cosine similarity assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// Entry is a single append-only vector store record.
type Entry struct {
	// Document is the stored chunk.
	Document Document
	// Embedding is the vector computed for Document.Content.
	Embedding []float32
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Add appends a batch of entries. Existing entries are never replaced.
	Add(ctx context.Context, entries []Entry) error

	// Search returns up to topK documents ranked by cosine similarity to the
	// query embedding. Ties are broken by insertion order, earliest first.
	// A topK larger than the store returns every entry.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever fetches relevant context for a query. It combines embedding and
// vector search.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents for the given query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}

// cloneMetadata returns a shallow copy of m so stored documents stay immutable.
func cloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
