package rag

import (
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b. Vectors of different
// length, or a zero-magnitude vector on either side, score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// candidate is a scored document awaiting ranking. seq is its insertion
// position, used only for tie-breaking.
type candidate struct {
	doc Document
	seq int64
}

// rankTopK orders candidates by descending score, then ascending seq, and
// returns at most k documents. It never returns nil.
func rankTopK(cands []candidate, k int) []Document {
	if k <= 0 {
		return []Document{}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].doc.Score != cands[j].doc.Score {
			return cands[i].doc.Score > cands[j].doc.Score
		}
		return cands[i].seq < cands[j].seq
	})
	if k > len(cands) {
		k = len(cands)
	}
	out := make([]Document, k)
	for i := range k {
		out[i] = cands[i].doc
	}
	return out
}
