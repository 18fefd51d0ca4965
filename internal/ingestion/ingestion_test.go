package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/54b3r/conductor-go/internal/embedder"
	"github.com/54b3r/conductor-go/internal/rag"
)

// writeTree creates files under a fresh temp dir. Keys are slash paths.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func Test_Loader_Match(t *testing.T) {
	t.Parallel()
	l, err := NewLoader([]string{"**/*.md", "docs/*.txt"})
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	tests := []struct {
		rel  string
		want bool
	}{
		{"README.md", true},
		{"a/b/c/NOTES.md", true},
		{"docs/guide.txt", true},
		{"other/guide.txt", false},
		{"main.go", false},
	}
	for _, tt := range tests {
		if got := l.Match(tt.rel); got != tt.want {
			t.Errorf("Match(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func Test_NewLoader_BadGlob(t *testing.T) {
	t.Parallel()
	if _, err := NewLoader([]string{"[unterminated"}); err == nil {
		t.Error("want error for malformed glob")
	}
}

func Test_Loader_Load(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"README.md":         "# Project",
		"src/lib.rs":        "fn main() {}",
		"src/util.go":       "package util",
		".git/config.toml":  "hidden = true",
		"pkg/Cargo.toml":    "[package]",
		"scripts/binary.py": "\xff\xfe\xfd",
	})

	l, err := NewLoader(nil)
	if err != nil {
		t.Fatalf("new loader: %v", err)
	}
	docs, stats, err := l.Load(context.Background(), root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stats.Files != 3 {
		t.Errorf("files: want 3, got %d", stats.Files)
	}
	if stats.Skipped != 1 {
		t.Errorf("skipped: want 1 (invalid utf-8), got %d", stats.Skipped)
	}
	for _, d := range docs {
		if strings.Contains(d.Source, ".git") {
			t.Errorf("hidden directory was loaded: %s", d.Source)
		}
		if d.Metadata[rag.MetaSource] != d.Source {
			t.Errorf("source metadata mismatch for %s", d.Source)
		}
		if d.Metadata[MetaLanguage] == "" {
			t.Errorf("missing language for %s", d.Source)
		}
	}
}

func Test_Loader_MissingRoot(t *testing.T) {
	t.Parallel()
	l, _ := NewLoader(nil)
	_, _, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("want ErrNotExist, got %v", err)
	}
}

func Test_NewSplitter_RejectsOverlap(t *testing.T) {
	t.Parallel()
	for _, tc := range [][2]int{{10, 10}, {10, 11}, {10, -1}, {-5, 0}} {
		if _, err := NewSplitter(tc[0], tc[1]); !errors.Is(err, ErrInvalidChunking) {
			t.Errorf("NewSplitter(%d, %d): want ErrInvalidChunking, got %v", tc[0], tc[1], err)
		}
	}
}

func Test_Splitter_Split(t *testing.T) {
	t.Parallel()
	s, err := NewSplitter(4, 1)
	if err != nil {
		t.Fatalf("new splitter: %v", err)
	}

	doc := rag.Document{Content: "abcdefghij", Source: "x.md", Metadata: map[string]string{rag.MetaSource: "x.md"}}
	chunks := s.Split(doc)

	want := []string{"abcd", "defg", "ghij"}
	if len(chunks) != len(want) {
		t.Fatalf("want %d chunks, got %d: %v", len(want), len(chunks), chunks)
	}
	for i, c := range chunks {
		if c.Content != want[i] {
			t.Errorf("chunk %d: want %q, got %q", i, want[i], c.Content)
		}
		if c.Metadata[rag.MetaChunkIndex] != strconv.Itoa(i) {
			t.Errorf("chunk %d: chunk_index %q", i, c.Metadata[rag.MetaChunkIndex])
		}
		if c.Metadata[rag.MetaStartIndex] != strconv.Itoa(3*i) {
			t.Errorf("chunk %d: start_index %q", i, c.Metadata[rag.MetaStartIndex])
		}
		if c.Metadata[rag.MetaSource] != "x.md" {
			t.Errorf("chunk %d lost parent metadata", i)
		}
	}
	if _, ok := doc.Metadata[rag.MetaChunkIndex]; ok {
		t.Error("parent metadata was mutated")
	}
}

func Test_Splitter_CountsRunes(t *testing.T) {
	t.Parallel()
	s, _ := NewSplitter(3, 0)
	chunks := s.Split(rag.Document{Content: "日本語のテキスト"})
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "日本語" {
		t.Errorf("first chunk: got %q", chunks[0].Content)
	}
}

func Test_Splitter_BlankDocument(t *testing.T) {
	t.Parallel()
	s, _ := NewSplitter(0, 0)
	if got := s.Split(rag.Document{Content: " \n\t "}); len(got) != 0 {
		t.Errorf("want no chunks, got %d", len(got))
	}
}

func Test_Pipeline_Ingest(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{
		"a.md": strings.Repeat("alpha ", 50),
		"b.py": "print('beta')",
	})
	store := rag.NewMemoryStore()
	p, err := NewPipeline(embedder.NewHashEmbedder(32), store, Config{ChunkSize: 100, ChunkOverlap: 10, EmbedBatchSize: 2})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	ctx := context.Background()
	stats, err := p.Ingest(ctx, root)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Files != 2 || stats.Chunks < 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	n, _ := store.Count(ctx)
	if n != stats.Chunks {
		t.Errorf("store holds %d entries, stats report %d", n, stats.Chunks)
	}

	// A second pass duplicates every chunk.
	again, err := p.Ingest(ctx, root)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	n, _ = store.Count(ctx)
	if n != stats.Chunks+again.Chunks {
		t.Errorf("want %d entries after re-index, got %d", stats.Chunks+again.Chunks, n)
	}
}

func Test_Pipeline_EmptyTreeIsNoop(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"main.go": "package main"})
	store := rag.NewMemoryStore()
	p, err := NewPipeline(embedder.NewHashEmbedder(8), store, DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	stats, err := p.Ingest(context.Background(), root)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stats.Chunks != 0 || stats.Files != 0 {
		t.Errorf("want zero stats, got %+v", stats)
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend down")
}

func Test_Pipeline_EmbedFailurePropagates(t *testing.T) {
	t.Parallel()
	root := writeTree(t, map[string]string{"a.md": "text"})
	p, err := NewPipeline(failingEmbedder{}, rag.NewMemoryStore(), DefaultConfig())
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	if _, err := p.Ingest(context.Background(), root); err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Errorf("want backend error, got %v", err)
	}
}

func Test_ConfigFromEnv(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "400")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("INDEX_GLOBS", "**/*.go, docs/*.md,")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if cfg.ChunkSize != 400 || cfg.ChunkOverlap != 50 {
		t.Errorf("chunking: got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if len(cfg.Globs) != 2 || cfg.Globs[1] != "docs/*.md" {
		t.Errorf("globs: got %v", cfg.Globs)
	}
	if cfg.EmbedBatchSize != DefaultEmbedBatchSize {
		t.Errorf("batch size: got %d", cfg.EmbedBatchSize)
	}

	t.Setenv("CHUNK_SIZE", "big")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("want error for malformed CHUNK_SIZE")
	}
}
