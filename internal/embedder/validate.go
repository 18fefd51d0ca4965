package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments identify chat/completion models, which produce poor
// embeddings if configured as EMBEDDING_MODEL.
var chatModelFragments = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama-3", "llama2", "llama-2",
	"mistral", "mixtral", "gemma", "phi3", "phi-",
	"claude", "command-r", "deepseek", "qwen",
}

// looksLikeChatModel reports whether model resembles a chat model name.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, frag := range chatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check of the embedding configuration. It returns
// an error when a remote backend lacks required credentials and logs
// warnings for settings that work but are probably unintended. Call it at
// startup so operators see a clear message before the first Embed.
func Validate(log *slog.Logger) error {
	backend := Provider()

	switch backend {
	case ProviderHash:
		if store := os.Getenv("VECTOR_STORE"); store == "qdrant" {
			log.Warn("embedder: remote vector store with the hash embedder; retrieval quality is lexical only",
				slog.String("vector_store", store),
				slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure) for semantic retrieval"),
			)
		}
		return nil

	case ProviderOllama:
		// No credentials needed.

	case ProviderOpenAI:
		if firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case ProviderAzure:
		if firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}

	default:
		return fmt.Errorf("embedder: unknown backend %q, valid values: hash, ollama, openai, azure", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, embeddings will likely be poor",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
