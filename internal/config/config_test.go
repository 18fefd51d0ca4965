package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/54b3r/conductor-go/internal/agent"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	cfg, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("expected empty path, got %q", cfg.Path)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if len(reg.Agents) != 4 || reg.Default != "gemini" {
		t.Errorf("expected built-in registry, got %+v", reg)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
  model: nomic-embed-text
  ollama:
    host: http://ollama.internal:11434
vector_store:
  backend: qdrant
  collection: my-project
qdrant:
  host: qdrant.internal
  port: 6334
index:
  chunk_size: 800
  chunk_overlap: 100
  globs: ["**/*.md", "**/*.go"]
executor:
  kind: command
  commands:
    codex: ["codex", "exec"]
agents:
  - name: codex
    languages: ["*"]
    best_for: [edit, bugfix]
  - name: reviewer
    languages: [go]
    best_for: [review]
languages: [go, rust]
default_agent: reviewer
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "OLLAMA_HOST",
		"VECTOR_STORE", "VECTOR_COLLECTION",
		"QDRANT_HOST", "QDRANT_PORT",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "INDEX_GLOBS", "EXECUTOR",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	cfg, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Path != cfgPath {
		t.Errorf("loaded path: got %q, want %q", cfg.Path, cfgPath)
	}

	checks := map[string]string{
		"EMBEDDING_PROVIDER": "ollama",
		"EMBEDDING_MODEL":    "nomic-embed-text",
		"OLLAMA_HOST":        "http://ollama.internal:11434",
		"VECTOR_STORE":       "qdrant",
		"VECTOR_COLLECTION":  "my-project",
		"QDRANT_HOST":        "qdrant.internal",
		"QDRANT_PORT":        "6334",
		"CHUNK_SIZE":         "800",
		"CHUNK_OVERLAP":      "100",
		"INDEX_GLOBS":        "**/*.md,**/*.go",
		"EXECUTOR":           "command",
		"LOG_LEVEL":          "debug",
		"LOG_FORMAT":         "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}

	if argv := cfg.Executor.Commands["codex"]; len(argv) != 2 || argv[1] != "exec" {
		t.Errorf("executor commands: got %v", cfg.Executor.Commands)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if names := reg.Names(); len(names) != 2 || names[0] != "codex" || names[1] != "reviewer" {
		t.Errorf("agent order: got %v", names)
	}
	if reg.Default != "reviewer" {
		t.Errorf("default agent: got %q", reg.Default)
	}
	if len(reg.Languages) != 2 || reg.Languages[0] != "go" {
		t.Errorf("languages: got %v", reg.Languages)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
embedding:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading; it should NOT be overwritten.
	t.Setenv("EMBEDDING_PROVIDER", "hash")

	log := slog.Default()
	if _, err := Load(cfgPath, log); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("EMBEDDING_PROVIDER"); got != "hash" {
		t.Errorf("EMBEDDING_PROVIDER: expected env override %q, got %q", "hash", got)
	}
}

func TestLoad_EnvPath(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "conductor.yaml")
	if err := os.WriteFile(cfgPath, []byte("default_agent: codex\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONDUCTOR_CONFIG", cfgPath)

	cfg, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Path != cfgPath || cfg.DefaultAgent != "codex" {
		t.Errorf("got %+v", cfg)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if reg.Default != "codex" || len(reg.Agents) != 4 {
		t.Errorf("built-in agents with codex default expected, got %+v", reg)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestConfig_Registry_Duplicate(t *testing.T) {
	t.Parallel()
	cfg := &Config{Agents: []agent.Capability{
		{Name: "codex", BestFor: []string{"edit"}},
		{Name: "codex", BestFor: []string{"bugfix"}},
	}}
	if _, err := cfg.Registry(); err == nil {
		t.Error("expected error for duplicate agent")
	}
}
