// Package knowledge implements the context manager: a session-scoped view over
// one vector store that indexes a project, answers similarity queries, and
// accepts execution results back as new context.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/conductor-go/internal/ingestion"
	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/rag"
)

// SourceExecutionResult marks documents written back by AddResult.
const SourceExecutionResult = "execution_result"

// IndexStats is the outcome of IndexProject.
type IndexStats = ingestion.Stats

// Manager composes a loader, splitter, embedder and store. It is safe for
// concurrent use to the extent its store is, but a session is expected to
// drive it from one goroutine.
type Manager struct {
	embedder  rag.Embedder
	store     rag.VectorStore
	pipeline  *ingestion.Pipeline
	retriever *rag.DefaultRetriever
}

// New constructs a Manager over store. cfg controls globs, chunking and
// embedding batch size.
func New(embedder rag.Embedder, store rag.VectorStore, cfg ingestion.Config) (*Manager, error) {
	pipeline, err := ingestion.NewPipeline(embedder, store, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}
	retriever, err := rag.NewRetriever(embedder, store, rag.DefaultTopK)
	if err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}
	return &Manager{
		embedder:  embedder,
		store:     store,
		pipeline:  pipeline,
		retriever: retriever,
	}, nil
}

// IndexProject loads, splits, embeds and stores every matching file under
// path. It is not idempotent: indexing an unchanged tree twice stores every
// chunk twice.
func (m *Manager) IndexProject(ctx context.Context, path string) (IndexStats, error) {
	stats, err := m.pipeline.Ingest(ctx, path)
	if err != nil {
		return stats, fmt.Errorf("knowledge: index %s: %w", path, err)
	}
	return stats, nil
}

// Retrieve returns up to k stored documents most similar to query. A k of 0
// means rag.DefaultTopK.
func (m *Manager) Retrieve(ctx context.Context, query string, k int) ([]rag.Document, error) {
	docs, err := m.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: retrieve: %w", err)
	}
	logging.FromContext(ctx).Debug("knowledge: retrieved context",
		slog.Int("k", k),
		slog.Int("returned", len(docs)),
	)
	return docs, nil
}

// AddResult stores text as a single unsplit document, visible to the next
// Retrieve. Nil metadata becomes {"source": "execution_result"}.
func (m *Manager) AddResult(ctx context.Context, text string, metadata map[string]string) error {
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta[rag.MetaSource]; !ok {
		meta[rag.MetaSource] = SourceExecutionResult
	}

	entries, err := ingestion.EmbedEntries(ctx, m.embedder, []rag.Document{{
		Content:  text,
		Source:   meta[rag.MetaSource],
		Metadata: meta,
	}})
	if err != nil {
		return fmt.Errorf("knowledge: add result: %w", err)
	}
	if err := m.store.Add(ctx, entries); err != nil {
		return fmt.Errorf("knowledge: add result: %w", err)
	}
	return nil
}

// Count returns the number of stored documents.
func (m *Manager) Count(ctx context.Context) (int, error) {
	n, err := m.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("knowledge: count: %w", err)
	}
	return n, nil
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}
