package agent

import (
	"strings"

	"github.com/54b3r/conductor-go/internal/rag"
)

// Score weights in tenths. Integer arithmetic keeps equal scores exactly equal.
const (
	keywordInTask     = 4
	keywordInContext  = 2
	languageInTask    = 3
	languageInContext = 1
	universalBonus    = 1

	// fallbackConfidence is reported when nothing scores.
	fallbackConfidence = 0.5
)

// Selection is the selector's verdict.
type Selection struct {
	// Agent is the chosen agent name.
	Agent string `json:"agent"`
	// Confidence is the winning score clamped to [0, 1].
	Confidence float64 `json:"confidence"`
	// Fallback is true when no agent scored and the default was used.
	Fallback bool `json:"fallback,omitempty"`
}

// Score is one agent's score breakdown.
type Score struct {
	Agent string `json:"agent"`
	// Keywords lists best_for terms found in the task.
	Keywords []string `json:"keywords,omitempty"`
	// ContextKeywords lists best_for terms found in the context.
	ContextKeywords []string `json:"context_keywords,omitempty"`
	// Languages lists supported languages named in the task.
	Languages []string `json:"languages,omitempty"`
	// ContextLanguages lists supported languages named in the context.
	ContextLanguages []string `json:"context_languages,omitempty"`
	// Universal is true when the flat wildcard bonus applied.
	Universal bool `json:"universal,omitempty"`

	tenths int
}

// Value returns the total as a fraction.
func (s Score) Value() float64 { return float64(s.tenths) / 10 }

// Selector scores registry agents against a task and its retrieved context.
// It is deterministic and safe for concurrent use.
type Selector struct {
	reg Registry
}

// NewSelector returns a Selector over reg.
func NewSelector(reg Registry) *Selector {
	return &Selector{reg: reg}
}

// Registry returns the registry the selector scores against.
func (s *Selector) Registry() Registry { return s.reg }

// Scores returns every agent's breakdown in registry order. Matching is
// plain lower-cased substring search.
func (s *Selector) Scores(task string, docs []rag.Document) []Score {
	taskText := strings.ToLower(task)
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = strings.ToLower(d.Content)
	}
	contextText := strings.Join(parts, "\n")

	out := make([]Score, 0, len(s.reg.Agents))
	for _, a := range s.reg.Agents {
		sc := Score{Agent: a.Name}
		for _, kw := range a.BestFor {
			if strings.Contains(taskText, kw) {
				sc.tenths += keywordInTask
				sc.Keywords = append(sc.Keywords, kw)
			}
			if strings.Contains(contextText, kw) {
				sc.tenths += keywordInContext
				sc.ContextKeywords = append(sc.ContextKeywords, kw)
			}
		}
		for _, lang := range s.reg.Languages {
			if !a.supports(lang) {
				continue
			}
			if strings.Contains(taskText, lang) {
				sc.tenths += languageInTask
				sc.Languages = append(sc.Languages, lang)
			}
			if strings.Contains(contextText, lang) {
				sc.tenths += languageInContext
				sc.ContextLanguages = append(sc.ContextLanguages, lang)
			}
		}
		if a.universal() {
			sc.tenths += universalBonus
			sc.Universal = true
		}
		out = append(out, sc)
	}
	return out
}

// Select picks the highest-scoring agent. The earliest agent in registry
// order wins a tie. When every agent scores zero the registry default is
// returned with confidence 0.5.
func (s *Selector) Select(task string, docs []rag.Document) Selection {
	best := -1
	bestTenths := 0
	for i, sc := range s.Scores(task, docs) {
		if sc.tenths > bestTenths {
			best, bestTenths = i, sc.tenths
		}
	}
	if best < 0 {
		return Selection{Agent: s.reg.Default, Confidence: fallbackConfidence, Fallback: true}
	}
	return Selection{
		Agent:      s.reg.Agents[best].Name,
		Confidence: min(float64(bestTenths)/10, 1.0),
	}
}
