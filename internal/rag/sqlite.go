package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// sqliteFileName is the database file created inside a persisted store directory.
const sqliteFileName = "vectors.db"

// SQLiteStore is a VectorStore persisted in a named directory. Several
// collections may share one directory; each is isolated by name. Entries
// survive process restart.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// collection scopes every read and write.
	collection string
}

// DefaultStoreDir returns the default persisted store directory,
// ~/.conductor/vectors, creating it if needed.
func DefaultStoreDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("rag: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".conductor", "vectors")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("rag: could not create %s: %w", dir, err)
	}
	return dir, nil
}

// OpenSQLiteStore opens (or creates) the store for collection inside dir.
func OpenSQLiteStore(dir, collection string) (*SQLiteStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("rag: sqlite store directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("rag: create store directory %s: %w", dir, err)
	}
	return openSQLite(filepath.Join(dir, sqliteFileName), collection)
}

// openSQLite opens the database at path. Use ":memory:" for tests.
func openSQLite(path, collection string) (*SQLiteStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("rag: open %s: %w", path, err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, collection: collection}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS entries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    collection  TEXT    NOT NULL,
    content     TEXT    NOT NULL,
    source      TEXT    NOT NULL,
    metadata    TEXT    NOT NULL,
    dims        INTEGER NOT NULL,
    embedding   BLOB    NOT NULL,
    created_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_entries_collection_id
    ON entries (collection, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("rag: sqlite migrate: %w", err)
	}
	return nil
}

// Add appends entries inside a single transaction.
func (s *SQLiteStore) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: sqlite add: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO entries (collection, content, source, metadata, dims, embedding, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("rag: sqlite add: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("rag: sqlite add: entry %d has an empty embedding", i)
		}
		meta, err := json.Marshal(e.Document.Metadata)
		if err != nil {
			return fmt.Errorf("rag: sqlite add: marshal metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, e.Document.Content, e.Document.Source,
			string(meta), len(e.Embedding), encodeVector(e.Embedding), now); err != nil {
			return fmt.Errorf("rag: sqlite add: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: sqlite add: commit: %w", err)
	}
	return nil
}

// Search scans the collection in insertion order and ranks by cosine similarity.
// Rows whose dimension differs from the query are skipped.
func (s *SQLiteStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error) {
	if topK <= 0 {
		return []Document{}, nil
	}

	const q = `SELECT id, content, source, metadata, dims, embedding
FROM entries WHERE collection = ? ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, q, s.collection)
	if err != nil {
		return nil, fmt.Errorf("rag: sqlite search: %w", err)
	}
	defer rows.Close()

	var cands []candidate
	for rows.Next() {
		var (
			id   int64
			doc  Document
			meta string
			dims int
			blob []byte
		)
		if err := rows.Scan(&id, &doc.Content, &doc.Source, &meta, &dims, &blob); err != nil {
			return nil, fmt.Errorf("rag: sqlite search scan: %w", err)
		}
		if dims != len(queryEmbedding) {
			continue
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("rag: sqlite search: decode metadata for id %d: %w", id, err)
		}
		if doc.Metadata == nil {
			doc.Metadata = map[string]string{}
		}
		doc.ID = strconv.FormatInt(id, 10)
		doc.Score = Cosine(queryEmbedding, decodeVector(blob))
		cands = append(cands, candidate{doc: doc, seq: id})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: sqlite search rows: %w", err)
	}

	return rankTopK(cands, topK), nil
}

// Count returns the number of entries in the collection.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	const q = `SELECT COUNT(*) FROM entries WHERE collection = ?`
	if err := s.db.QueryRowContext(ctx, q, s.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("rag: sqlite count: %w", err)
	}
	return n, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("rag: sqlite close: %w", err)
	}
	return nil
}

// encodeVector packs v as little-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
