// Package budget estimates token counts and trims retrieved context to fit an
// agent's input budget. Agents use different tokenizers, so the estimate is a
// character heuristic: 1 token is about 4 characters of English or code.
package budget

import (
	"unicode/utf8"

	"github.com/54b3r/conductor-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default context budget handed to an agent.
	DefaultMaxContextTokens = 6000

	// perDocumentOverhead accounts for the separator and source header
	// written around each document.
	perDocumentOverhead = 8
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateDocuments returns the estimated token count of docs, including
// per-document framing overhead.
func EstimateDocuments(docs []rag.Document) int {
	total := 0
	for _, d := range docs {
		total += perDocumentOverhead
		total += Estimate(d.Source)
		total += Estimate(d.Content)
	}
	return total
}

// TrimDocuments drops the lowest-ranked documents (the tail of a ranked
// slice) until the rest fit within maxTokens. The input slice is not
// modified. A non-positive maxTokens disables trimming.
func TrimDocuments(docs []rag.Document, maxTokens int) []rag.Document {
	if maxTokens <= 0 || len(docs) == 0 {
		return docs
	}
	// Ranked context is short (k is single digits), so a linear scan is fine.
	n := len(docs)
	for n > 0 && EstimateDocuments(docs[:n]) > maxTokens {
		n--
	}
	return docs[:n]
}

// Truncate shortens s to at most maxTokens*4 bytes, cutting on a rune
// boundary. A non-positive maxTokens returns s unchanged.
func Truncate(s string, maxTokens int) string {
	limit := maxTokens * charsPerToken
	if maxTokens <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
