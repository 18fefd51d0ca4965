// Package config provides YAML-based configuration for conductor.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a file never overrides an explicit export.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. CONDUCTOR_CONFIG environment variable
//  3. ~/.conductor/config.yaml
//  4. ./conductor.yaml
//
// Scalar settings are projected onto environment variables, which the
// embedder, vector store, ingestion and executor packages read. The agent
// table and the per-agent executor commands have no env form and are read
// from the returned Config.
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/54b3r/conductor-go/internal/agent"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Path is the file the config was read from, empty when none was found.
	Path string `yaml:"-"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore selects and configures the context store backend.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Index configures project indexing.
	Index IndexConfig `yaml:"index"`

	// Executor configures how agents are invoked.
	Executor ExecutorConfig `yaml:"executor"`

	// Agents is the ordered capability table. Order breaks selection ties.
	// Empty means the built-in registry.
	Agents []agent.Capability `yaml:"agents"`

	// Languages is the language list used for scoring.
	Languages []string `yaml:"languages"`

	// DefaultAgent is chosen when no agent scores above zero.
	DefaultAgent string `yaml:"default_agent"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (hash, ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint. The deployment name
	// is taken from embedding.model.
	Endpoint string `yaml:"endpoint"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// VectorStoreConfig selects the context store backend.
type VectorStoreConfig struct {
	// Backend is memory, sqlite or qdrant.
	Backend string `yaml:"backend"`
	// Dir is the sqlite store directory.
	Dir string `yaml:"dir"`
	// Collection isolates one project's entries from another's.
	Collection string `yaml:"collection"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// IndexConfig holds project indexing settings.
type IndexConfig struct {
	// ChunkSize is the maximum runes per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the runes shared by consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// Globs selects indexed files.
	Globs []string `yaml:"globs"`
}

// ExecutorConfig holds agent invocation settings.
type ExecutorConfig struct {
	// Kind is template or command.
	Kind string `yaml:"kind"`
	// MaxContextTokens bounds the context handed to a command executor.
	MaxContextTokens int `yaml:"max_context_tokens"`
	// Commands maps agent name to argv for the command executor.
	Commands map[string][]string `yaml:"commands"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var CONDUCTOR_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Embedding.Ollama.Host }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Embedding.OpenAI.APIKey }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Embedding.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Embedding.Azure.Endpoint }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Embedding.Azure.APIVersion }},
	{"VECTOR_STORE", func(c *Config) string { return c.VectorStore.Backend }},
	{"VECTOR_STORE_DIR", func(c *Config) string { return c.VectorStore.Dir }},
	{"VECTOR_COLLECTION", func(c *Config) string { return c.VectorStore.Collection }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.Index.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Index.ChunkOverlap) }},
	{"INDEX_GLOBS", func(c *Config) string { return strings.Join(c.Index.Globs, ",") }},
	{"EXECUTOR", func(c *Config) string { return c.Executor.Kind }},
	{"EXECUTOR_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Executor.MaxContextTokens) }},
	{"CONDUCTOR_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty scalar values as
// environment variables. Existing env vars are never overwritten (env always
// wins). When no file is found an empty Config is returned.
func Load(explicitPath string, log *slog.Logger) (*Config, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	cfg.Path = path

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env wins
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return nil, fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
		slog.Int("agents", len(cfg.Agents)),
	)

	return &cfg, nil
}

// Registry builds the agent registry described by the file, or the
// built-in registry when the file declares no agents.
func (c *Config) Registry() (agent.Registry, error) {
	if len(c.Agents) == 0 {
		reg := agent.DefaultRegistry()
		if len(c.Languages) > 0 {
			reg.Languages = c.Languages
		}
		if c.DefaultAgent != "" {
			return agent.NewRegistry(reg.Agents, reg.Languages, c.DefaultAgent)
		}
		return reg, nil
	}
	reg, err := agent.NewRegistry(c.Agents, c.Languages, c.DefaultAgent)
	if err != nil {
		return agent.Registry{}, fmt.Errorf("config: %w", err)
	}
	return reg, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CONDUCTOR_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".conductor", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("conductor.yaml"); err == nil {
		return "conductor.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
