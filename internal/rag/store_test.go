package rag

import (
	"context"
	"math"
	"testing"
)

func entry(content string, vec ...float32) Entry {
	return Entry{
		Document:  Document{Content: content, Source: content + ".md", Metadata: map[string]string{MetaSource: content + ".md"}},
		Embedding: vec,
	}
}

// storeFactories returns the backends that run without external services.
func storeFactories() map[string]func(t *testing.T) VectorStore {
	return map[string]func(t *testing.T) VectorStore{
		"memory": func(*testing.T) VectorStore { return NewMemoryStore() },
		"sqlite": func(t *testing.T) VectorStore {
			s, err := OpenSQLiteStore(t.TempDir(), "test")
			if err != nil {
				t.Fatalf("open sqlite store: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func Test_Store_SearchOrdersByScore(t *testing.T) {
	t.Parallel()
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			ctx := context.Background()

			err := s.Add(ctx, []Entry{
				entry("far", 0, 1),
				entry("near", 1, 0),
				entry("mid", 1, 1),
			})
			if err != nil {
				t.Fatalf("add: %v", err)
			}

			docs, err := s.Search(ctx, []float32{1, 0}, 3)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			want := []string{"near", "mid", "far"}
			if len(docs) != len(want) {
				t.Fatalf("want %d docs, got %d", len(want), len(docs))
			}
			for i, w := range want {
				if docs[i].Content != w {
					t.Errorf("docs[%d]: want %q, got %q", i, w, docs[i].Content)
				}
			}
			for i := 1; i < len(docs); i++ {
				if docs[i].Score > docs[i-1].Score {
					t.Errorf("scores not non-increasing at %d: %v > %v", i, docs[i].Score, docs[i-1].Score)
				}
			}
		})
	}
}

func Test_Store_TiesBrokenByInsertionOrder(t *testing.T) {
	t.Parallel()
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			ctx := context.Background()

			if err := s.Add(ctx, []Entry{entry("first", 1, 0), entry("second", 1, 0)}); err != nil {
				t.Fatalf("add: %v", err)
			}
			if err := s.Add(ctx, []Entry{entry("third", 1, 0)}); err != nil {
				t.Fatalf("add: %v", err)
			}

			docs, err := s.Search(ctx, []float32{1, 0}, 2)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(docs) != 2 || docs[0].Content != "first" || docs[1].Content != "second" {
				t.Errorf("want [first second], got %v", contents(docs))
			}
		})
	}
}

func Test_Store_KLargerThanStoreReturnsAll(t *testing.T) {
	t.Parallel()
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			ctx := context.Background()

			if err := s.Add(ctx, []Entry{entry("a", 1, 0), entry("b", 0, 1)}); err != nil {
				t.Fatalf("add: %v", err)
			}
			docs, err := s.Search(ctx, []float32{1, 0}, 10)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(docs) != 2 {
				t.Errorf("want 2 docs, got %d", len(docs))
			}

			docs, err = s.Search(ctx, []float32{1, 0}, 0)
			if err != nil {
				t.Fatalf("search k=0: %v", err)
			}
			if docs == nil || len(docs) != 0 {
				t.Errorf("k=0: want empty non-nil slice, got %v", docs)
			}
		})
	}
}

func Test_Store_DuplicatesAreKept(t *testing.T) {
	t.Parallel()
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			ctx := context.Background()

			for range 2 {
				if err := s.Add(ctx, []Entry{entry("same", 1, 0)}); err != nil {
					t.Fatalf("add: %v", err)
				}
			}
			n, err := s.Count(ctx)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if n != 2 {
				t.Errorf("want 2 entries, got %d", n)
			}
		})
	}
}

func Test_Store_MetadataRoundTrip(t *testing.T) {
	t.Parallel()
	for name, open := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			ctx := context.Background()

			e := Entry{
				Document: Document{
					Content:  "result",
					Source:   "execution_result",
					Metadata: map[string]string{MetaSource: "execution_result", MetaAgent: "codex", MetaStep: "Fix"},
				},
				Embedding: []float32{0.5, 0.5},
			}
			if err := s.Add(ctx, []Entry{e}); err != nil {
				t.Fatalf("add: %v", err)
			}
			docs, err := s.Search(ctx, []float32{0.5, 0.5}, 1)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(docs) != 1 {
				t.Fatalf("want 1 doc, got %d", len(docs))
			}
			got := docs[0]
			if got.Source != "execution_result" || got.Metadata[MetaAgent] != "codex" || got.Metadata[MetaStep] != "Fix" {
				t.Errorf("metadata lost: %+v", got)
			}
			if math.Abs(float64(got.Score)-1) > 1e-6 {
				t.Errorf("want score 1, got %v", got.Score)
			}
		})
	}
}

func Test_MemoryStore_RejectsDimensionMismatch(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Add(ctx, []Entry{entry("a", 1, 0)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(ctx, []Entry{entry("b", 1, 0, 0)}); err == nil {
		t.Error("want error adding entry of a different dimension")
	}
	if _, err := s.Search(ctx, []float32{1, 0, 0}, 1); err == nil {
		t.Error("want error searching with a different dimension")
	}
}

func Test_SQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	s, err := OpenSQLiteStore(dir, "proj")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Add(ctx, []Entry{entry("kept", 0.25, -1.5, 3)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenSQLiteStore(dir, "proj")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })

	docs, err := reopened.Search(ctx, []float32{0.25, -1.5, 3}, 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "kept" {
		t.Fatalf("want [kept], got %v", contents(docs))
	}
	if math.Abs(float64(docs[0].Score)-1) > 1e-6 {
		t.Errorf("vector did not survive encoding, score %v", docs[0].Score)
	}
}

func Test_SQLiteStore_CollectionIsolation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	a, err := OpenSQLiteStore(dir, "a")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	if err := a.Add(ctx, []Entry{entry("only-a", 1, 0)}); err != nil {
		t.Fatalf("add: %v", err)
	}

	b, err := OpenSQLiteStore(dir, "b")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	n, err := b.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("collection b: want 0 entries, got %d", n)
	}
}

func Test_NewStore_UnknownBackend(t *testing.T) {
	t.Parallel()
	if _, err := NewStore(context.Background(), StoreConfig{Backend: "redis"}); err == nil {
		t.Error("want error for unknown backend")
	}
}

func Test_NewStore_QdrantRequiresVectorSize(t *testing.T) {
	t.Parallel()
	if _, err := NewStore(context.Background(), StoreConfig{Backend: BackendQdrant}); err == nil {
		t.Error("want error when vector size is missing")
	}
}

func Test_StoreConfigFromEnv(t *testing.T) {
	t.Setenv("VECTOR_STORE", "sqlite")
	t.Setenv("VECTOR_STORE_DIR", "/tmp/vectors")
	t.Setenv("VECTOR_COLLECTION", "")
	t.Setenv("QDRANT_PORT", "7000")

	cfg := StoreConfigFromEnv(256)
	if cfg.Backend != BackendSQLite {
		t.Errorf("backend: want sqlite, got %q", cfg.Backend)
	}
	if cfg.Dir != "/tmp/vectors" {
		t.Errorf("dir: want /tmp/vectors, got %q", cfg.Dir)
	}
	if cfg.Collection != DefaultCollection {
		t.Errorf("collection: want %q, got %q", DefaultCollection, cfg.Collection)
	}
	if cfg.Qdrant.Port != 7000 {
		t.Errorf("qdrant port: want 7000, got %d", cfg.Qdrant.Port)
	}
	if cfg.VectorSize != 256 {
		t.Errorf("vector size: want 256, got %d", cfg.VectorSize)
	}
}

func contents(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Content
	}
	return out
}
