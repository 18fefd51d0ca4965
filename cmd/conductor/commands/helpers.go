package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fatih/color"

	"github.com/54b3r/conductor-go/internal/embedder"
	"github.com/54b3r/conductor-go/internal/executor"
	"github.com/54b3r/conductor-go/internal/ingestion"
	"github.com/54b3r/conductor-go/internal/knowledge"
	"github.com/54b3r/conductor-go/internal/orchestrator"
	"github.com/54b3r/conductor-go/internal/rag"
	"github.com/54b3r/conductor-go/internal/server"
	"github.com/54b3r/conductor-go/internal/tracing"
)

// session bundles the backends a command opens so they can be probed and
// closed together.
type session struct {
	knowledge *knowledge.Manager
	embedder  rag.Embedder
	store     rag.VectorStore
}

// Close releases the store.
func (s *session) Close() error { return s.knowledge.Close() }

// openSession builds the embedder, vector store and context manager from the
// environment (already merged with the YAML config).
func openSession(ctx context.Context, log *slog.Logger) (*session, error) {
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	provider := embedder.Provider()

	storeCfg := rag.StoreConfigFromEnv(embedder.DefaultDimensions(provider))
	store, err := rag.NewStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	ingestCfg, err := ingestion.ConfigFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	km, err := knowledge.New(emb, store, ingestCfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	log.Info("context store ready",
		slog.String("embedder", provider),
		slog.String("store", backendName(storeCfg.Backend)),
		slog.String("collection", storeCfg.Collection),
	)
	return &session{knowledge: km, embedder: emb, store: store}, nil
}

// newOrchestrator wires sess into an orchestrator using the registry and
// executor commands from the loaded config. indexOnce is set by long-lived
// commands that run many requests against one store.
func newOrchestrator(sess *session, metrics *orchestrator.Metrics, indexOnce bool) (*orchestrator.Orchestrator, error) {
	reg, err := loadedConfig.Registry()
	if err != nil {
		return nil, err
	}
	exec, err := executor.NewFromEnv(executor.CommandConfig{
		Commands: loadedConfig.Executor.Commands,
	})
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Config{
		Knowledge: sess.knowledge,
		Registry:  reg,
		Executor:  exec,
		Metrics:   metrics,
		IndexOnce: indexOnce,
	})
}

// buildPingers returns readiness probes for the backends that live out of
// process.
func buildPingers(sess *session) []server.Pinger {
	var pingers []server.Pinger
	if qs, ok := sess.store.(*rag.QdrantStore); ok {
		pingers = append(pingers, server.NewQdrantPinger(qs.Client()))
	}
	if oe, ok := sess.embedder.(*embedder.OllamaEmbedder); ok {
		pingers = append(pingers, server.NewFuncPinger("embedder", oe.Ping))
	}
	return pingers
}

// setupTracing enables Langfuse when configured and returns its flush function.
func setupTracing(log *slog.Logger) func() {
	flush, ok := tracing.Setup(tracing.ConfigFromEnv())
	if ok {
		log.Info("langfuse tracing enabled")
	} else {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
	}
	return flush
}

// indexByDefault reports whether explain should index before scoring. Only
// the memory store starts empty; persisted stores would gain another copy.
func indexByDefault(backend string) bool {
	return backendName(backend) == rag.BackendMemory
}

// backendName reports the effective store backend for logs.
func backendName(b string) string {
	if b == "" {
		return rag.BackendMemory
	}
	return b
}

// printStatus writes a coloured status symbol followed by message.
func printStatus(w io.Writer, symbol, message string, attr color.Attribute) {
	c := color.New(attr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}
