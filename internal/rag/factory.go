package rag

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// DefaultCollection names the collection used when none is configured.
const DefaultCollection = "conductor"

// Backend names accepted by VECTOR_STORE.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// StoreConfig selects and configures a VectorStore backend.
type StoreConfig struct {
	// Backend is one of memory, sqlite or qdrant. Empty means memory.
	Backend string

	// Dir is the persisted store directory for the sqlite backend.
	// Empty means DefaultStoreDir.
	Dir string

	// Collection names the collection inside Dir or on the Qdrant server.
	Collection string

	// Qdrant holds connection settings for the qdrant backend.
	Qdrant QdrantConfig

	// VectorSize is the embedding dimension, used when creating a Qdrant collection.
	VectorSize int
}

// StoreConfigFromEnv reads VECTOR_STORE, VECTOR_STORE_DIR, VECTOR_COLLECTION
// and the QDRANT_* variables. vectorSize is the resolved embedding dimension.
func StoreConfigFromEnv(vectorSize int) StoreConfig {
	cfg := StoreConfig{
		Backend:    os.Getenv("VECTOR_STORE"),
		Dir:        os.Getenv("VECTOR_STORE_DIR"),
		Collection: os.Getenv("VECTOR_COLLECTION"),
		VectorSize: vectorSize,
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendMemory
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	cfg.Qdrant = QdrantConfig{
		Host:       os.Getenv("QDRANT_HOST"),
		Collection: cfg.Collection,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	}
	if p, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil {
		cfg.Qdrant.Port = p
	}
	return cfg
}

// NewStore constructs the VectorStore named by cfg.Backend.
func NewStore(ctx context.Context, cfg StoreConfig) (VectorStore, error) {
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil

	case BackendSQLite:
		dir := cfg.Dir
		if dir == "" {
			d, err := DefaultStoreDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		return OpenSQLiteStore(dir, collection)

	case BackendQdrant:
		if cfg.VectorSize <= 0 {
			return nil, fmt.Errorf("rag: qdrant backend requires a positive vector size")
		}
		qc := cfg.Qdrant
		if qc.Collection == "" {
			qc.Collection = collection
		}
		qc.VectorSize = uint64(cfg.VectorSize)
		return NewQdrantStore(ctx, &qc)

	default:
		return nil, fmt.Errorf("rag: unknown vector store backend %q, valid values: memory, sqlite, qdrant", cfg.Backend)
	}
}
