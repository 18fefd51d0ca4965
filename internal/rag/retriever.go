package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/conductor-go/internal/logging"
)

// DefaultTopK is the number of results returned when a caller passes topK 0.
const DefaultTopK = 5

// DefaultRetriever embeds the query and hands the vector to a VectorStore.
// An empty store short-circuits without calling the embedder.
type DefaultRetriever struct {
	embedder    Embedder
	store       VectorStore
	defaultTopK int
}

// NewRetriever returns a DefaultRetriever. A non-positive defaultTopK falls
// back to DefaultTopK.
func NewRetriever(embedder Embedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve returns at most topK documents by descending similarity to query.
// A topK of 0 uses the default; a negative topK returns nothing. Asking for
// more than the store holds returns everything.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK == 0 {
		topK = r.defaultTopK
	}
	if topK < 0 {
		return []Document{}, nil
	}

	n, err := r.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: count failed: %w", err)
	}
	if n == 0 {
		return []Document{}, nil
	}
	topK = min(topK, n)

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	docs, err := r.store.Search(ctx, embeddings[0], topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	logging.FromContext(ctx).Debug("rag: retrieved",
		slog.Int("k", topK),
		slog.Int("hits", len(docs)),
		slog.Int("stored", n),
	)
	return docs, nil
}
