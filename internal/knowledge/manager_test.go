package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/conductor-go/internal/embedder"
	"github.com/54b3r/conductor-go/internal/ingestion"
	"github.com/54b3r/conductor-go/internal/rag"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(embedder.NewHashEmbedder(128), rag.NewMemoryStore(), ingestion.Config{ChunkSize: 200, ChunkOverlap: 20})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func projectDir(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":  "Conductor routes tasks to agents.\n" + strings.Repeat("Routing notes. ", 30),
		"src/lib.rs": "pub fn parse() -> Result<(), Error> { todo!() }\n" + strings.Repeat("// parser internals\n", 20),
		"tool.py":    "def translate(text):\n    return text\n",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func Test_Manager_IndexThenRetrieveK(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	stats, err := m.IndexProject(ctx, projectDir(t))
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if stats.Chunks < 3 {
		t.Fatalf("want at least 3 chunks, got %+v", stats)
	}

	docs, err := m.Retrieve(ctx, "parser", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("want exactly 3 docs, got %d", len(docs))
	}
	for i := 1; i < len(docs); i++ {
		if docs[i].Score > docs[i-1].Score {
			t.Errorf("scores increase at %d", i)
		}
	}
}

func Test_Manager_RetrieveMoreThanStored(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.IndexProject(ctx, projectDir(t)); err != nil {
		t.Fatalf("index: %v", err)
	}
	n, err := m.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	docs, err := m.Retrieve(ctx, "anything", n+50)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(docs) != n {
		t.Errorf("want all %d docs, got %d", n, len(docs))
	}
}

func Test_Manager_AddResultIsRetrievable(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.IndexProject(ctx, projectDir(t)); err != nil {
		t.Fatalf("index: %v", err)
	}
	text := "Quarterly zebra migration summary completed"
	if err := m.AddResult(ctx, text, nil); err != nil {
		t.Fatalf("add result: %v", err)
	}

	docs, err := m.Retrieve(ctx, "zebra migration summary", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(docs) == 0 || docs[0].Content != text {
		t.Fatalf("want added result first, got %v", docs)
	}
	if docs[0].Metadata[rag.MetaSource] != SourceExecutionResult {
		t.Errorf("want default source metadata, got %v", docs[0].Metadata)
	}
}

func Test_Manager_AddResultKeepsMetadata(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	meta := map[string]string{rag.MetaAgent: "codex", rag.MetaStep: "Fix"}
	if err := m.AddResult(ctx, "patched the parser", meta); err != nil {
		t.Fatalf("add result: %v", err)
	}
	docs, err := m.Retrieve(ctx, "patched the parser", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	got := docs[0].Metadata
	if got[rag.MetaAgent] != "codex" || got[rag.MetaStep] != "Fix" || got[rag.MetaSource] != SourceExecutionResult {
		t.Errorf("unexpected metadata %v", got)
	}
	if _, ok := meta[rag.MetaSource]; ok {
		t.Error("caller metadata was mutated")
	}
}

func Test_Manager_IndexIsNotIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()
	dir := projectDir(t)

	first, err := m.IndexProject(ctx, dir)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if _, err := m.IndexProject(ctx, dir); err != nil {
		t.Fatalf("re-index: %v", err)
	}
	n, _ := m.Count(ctx)
	if n != 2*first.Chunks {
		t.Errorf("want %d entries, got %d", 2*first.Chunks, n)
	}
}

func Test_Manager_EmptyIndexRetrievesNothing(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	ctx := context.Background()

	stats, err := m.IndexProject(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("index empty dir: %v", err)
	}
	if stats.Chunks != 0 {
		t.Errorf("want 0 chunks, got %d", stats.Chunks)
	}
	docs, err := m.Retrieve(ctx, "anything", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("want no docs, got %d", len(docs))
	}
}
