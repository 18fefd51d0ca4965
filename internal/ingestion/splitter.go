package ingestion

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/54b3r/conductor-go/internal/rag"
)

// Chunking defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// ErrInvalidChunking is returned when the overlap is not strictly smaller
// than the chunk size.
var ErrInvalidChunking = errors.New("ingestion: chunk overlap must be non-negative and smaller than chunk size")

// Splitter cuts documents into fixed-size overlapping windows measured in runes.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter returns a Splitter. A zero size selects DefaultChunkSize.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w (size=%d, overlap=%d)", ErrInvalidChunking, size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split returns the chunks of doc. Each chunk holds at most size runes and
// shares overlap runes with the previous one. Chunks carry the parent's
// metadata plus chunk_index and start_index. Blank documents yield nothing.
func (s *Splitter) Split(doc rag.Document) []rag.Document {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	runes := []rune(doc.Content)
	step := s.size - s.overlap

	var chunks []rag.Document
	for start := 0; start < len(runes); start += step {
		end := min(start+s.size, len(runes))

		meta := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			meta[k] = v
		}
		meta[rag.MetaChunkIndex] = strconv.Itoa(len(chunks))
		meta[rag.MetaStartIndex] = strconv.Itoa(start)

		chunks = append(chunks, rag.Document{
			Content:  string(runes[start:end]),
			Source:   doc.Source,
			Metadata: meta,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// SplitAll splits every document, preserving order.
func (s *Splitter) SplitAll(docs []rag.Document) []rag.Document {
	var out []rag.Document
	for _, d := range docs {
		out = append(out, s.Split(d)...)
	}
	return out
}
