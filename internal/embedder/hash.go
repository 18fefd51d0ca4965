// Package embedder provides rag.Embedder implementations. The hash embedder
// runs in-process with no model; the Ollama and OpenAI-compatible embedders
// call a remote service over plain HTTP.
package embedder

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// DefaultHashDimensions is the vector size of the hash embedder when none is configured.
const DefaultHashDimensions = 256

// HashEmbedder maps text to a fixed-size vector by feature hashing its
// lower-cased alphanumeric tokens. Identical texts always produce identical
// vectors, and texts sharing vocabulary score higher under cosine similarity.
// It needs no network and is safe for concurrent use.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of length dims.
// A non-positive dims selects DefaultHashDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions reports the output vector length.
func (e *HashEmbedder) Dimensions() int { return e.dims }

// Embed hashes each text independently. Every vector has unit length, so
// cosine is defined for all of them, including text with no tokens.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(text)
	}
	return out, nil
}

// emptyToken stands in for text with no letters or digits. It cannot come
// out of tokenize.
const emptyToken = "\x00"

func (e *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	toks := tokenize(text)
	if len(toks) == 0 {
		// Text without tokens maps to one fixed unit vector, never zero.
		toks = []string{emptyToken}
	}
	for _, tok := range toks {
		h := xxhash.Sum64String(tok)
		idx := h % uint64(e.dims) //nolint:gosec // dims is positive
		// The top bit picks the sign so colliding tokens tend to cancel.
		if h>>63 == 1 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// Every token cancelled out.
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// tokenize splits text into lower-cased runs of letters and digits.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
