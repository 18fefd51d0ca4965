package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/rag"
)

// DefaultEmbedBatchSize bounds how many chunks go to the embedder per call.
const DefaultEmbedBatchSize = 64

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Globs selects which files are indexed. Empty means DefaultGlobs.
	Globs []string

	// ChunkSize is the maximum number of runes per chunk.
	// Defaults to DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of runes shared between consecutive chunks.
	// Must be smaller than ChunkSize.
	ChunkOverlap int

	// EmbedBatchSize bounds each embedder call. Defaults to DefaultEmbedBatchSize if zero.
	EmbedBatchSize int
}

// DefaultConfig returns the stock chunking and glob settings.
func DefaultConfig() Config {
	return Config{
		Globs:          DefaultGlobs,
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		EmbedBatchSize: DefaultEmbedBatchSize,
	}
}

// ConfigFromEnv returns DefaultConfig overridden by CHUNK_SIZE,
// CHUNK_OVERLAP and INDEX_GLOBS (comma separated). Malformed numbers are
// reported rather than ignored.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv("CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ingestion: CHUNK_SIZE: %w", err)
		}
		cfg.ChunkSize = n
	}
	if v := os.Getenv("CHUNK_OVERLAP"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("ingestion: CHUNK_OVERLAP: %w", err)
		}
		cfg.ChunkOverlap = n
	}
	if v := os.Getenv("INDEX_GLOBS"); v != "" {
		var globs []string
		for _, g := range strings.Split(v, ",") {
			if g = strings.TrimSpace(g); g != "" {
				globs = append(globs, g)
			}
		}
		cfg.Globs = globs
	}
	return cfg, nil
}

// Stats reports the outcome of one Ingest call.
type Stats struct {
	// Files is the number of files loaded.
	Files int `json:"files"`
	// Skipped is the number of matching files that could not be read.
	Skipped int `json:"skipped"`
	// Chunks is the number of chunks embedded and stored.
	Chunks int `json:"chunks"`
}

// Pipeline drives load, split, embed, and store for a project tree.
type Pipeline struct {
	// embedder converts chunks into dense vectors.
	embedder rag.Embedder

	// store receives the embedded chunks.
	store rag.VectorStore

	loader    *Loader
	splitter  *Splitter
	batchSize int
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	loader, err := NewLoader(cfg.Globs)
	if err != nil {
		return nil, err
	}
	overlap := cfg.ChunkOverlap
	if cfg.ChunkSize == 0 && overlap == 0 {
		overlap = DefaultChunkOverlap
	}
	splitter, err := NewSplitter(cfg.ChunkSize, overlap)
	if err != nil {
		return nil, err
	}
	batch := cfg.EmbedBatchSize
	if batch <= 0 {
		batch = DefaultEmbedBatchSize
	}
	return &Pipeline{
		embedder:  embedder,
		store:     store,
		loader:    loader,
		splitter:  splitter,
		batchSize: batch,
	}, nil
}

// Ingest indexes every matching file under root. Repeated calls on the same
// tree store duplicate entries. A tree with nothing to index is not an error.
func (p *Pipeline) Ingest(ctx context.Context, root string) (Stats, error) {
	log := logging.FromContext(ctx)

	docs, ls, err := p.loader.Load(ctx, root)
	stats := Stats{Files: ls.Files, Skipped: ls.Skipped}
	if err != nil {
		return stats, err
	}

	chunks := p.splitter.SplitAll(docs)
	if len(chunks) == 0 {
		log.Warn("ingestion: no documents found to index", slog.String("root", root))
		return stats, nil
	}

	// Batches run one after another so the store sees chunks in walk order.
	for start := 0; start < len(chunks); start += p.batchSize {
		end := min(start+p.batchSize, len(chunks))
		entries, err := EmbedEntries(ctx, p.embedder, chunks[start:end])
		if err != nil {
			return stats, err
		}
		if err := p.store.Add(ctx, entries); err != nil {
			return stats, fmt.Errorf("ingestion: store chunks %d-%d: %w", start, end-1, err)
		}
		stats.Chunks = end
	}

	log.Info("ingestion: indexed project",
		slog.String("root", root),
		slog.Int("files", stats.Files),
		slog.Int("skipped", stats.Skipped),
		slog.Int("chunks", stats.Chunks),
	)
	return stats, nil
}

// EmbedEntries embeds docs in one call and pairs each with its vector.
func EmbedEntries(ctx context.Context, embedder rag.Embedder, docs []rag.Document) ([]rag.Entry, error) {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingestion: embed %d chunks: %w", len(docs), err)
	}
	if len(vecs) != len(docs) {
		return nil, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(vecs), len(docs))
	}
	entries := make([]rag.Entry, len(docs))
	for i := range docs {
		entries[i] = rag.Entry{Document: docs[i], Embedding: vecs[i]}
	}
	return entries, nil
}
