// Package agent holds the capability registry of known agents and the
// heuristic selector that picks one of them for a task. Both are plain
// values: callers build a Registry, hand it to NewSelector, and never touch
// global state.
package agent

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Wildcard in Capability.Languages means the agent handles any language.
const Wildcard = "*"

// DefaultAgent is chosen when no agent scores above zero.
const DefaultAgent = "gemini"

// DefaultLanguages are the language names the selector looks for in text.
var DefaultLanguages = []string{"rust", "python"}

// ErrUnknownAgent is returned when a name does not appear in the registry.
var ErrUnknownAgent = errors.New("agent: unknown agent")

// Capability declares what an agent is good at.
type Capability struct {
	// Name identifies the agent.
	Name string `yaml:"name" json:"name"`
	// Languages lists supported languages, or Wildcard.
	Languages []string `yaml:"languages" json:"languages"`
	// BestFor lists task keywords the agent is suited to.
	BestFor []string `yaml:"best_for" json:"best_for"`
}

// universal reports whether the agent declares wildcard language support.
func (c Capability) universal() bool {
	return slices.Contains(c.Languages, Wildcard)
}

// supports reports whether the agent declares lang, directly or by wildcard.
func (c Capability) supports(lang string) bool {
	return c.universal() || slices.Contains(c.Languages, lang)
}

// Registry is an ordered table of agent capabilities. Order matters: it
// decides ties during selection.
type Registry struct {
	// Agents in priority order.
	Agents []Capability
	// Languages recognised in task and context text.
	Languages []string
	// Default is the fallback agent name when nothing scores.
	Default string
}

// DefaultRegistry returns the built-in agent table.
func DefaultRegistry() Registry {
	return Registry{
		Agents: []Capability{
			{Name: "codex", Languages: []string{Wildcard}, BestFor: []string{"edit", "refactor", "bugfix"}},
			{Name: "gemini", Languages: []string{Wildcard}, BestFor: []string{"analyze", "explain", "generate"}},
			{Name: "qwen", Languages: []string{Wildcard}, BestFor: []string{"translate", "multilingual"}},
			{Name: "gestalt", Languages: []string{"rust", "python"}, BestFor: []string{"architecture", "design"}},
		},
		Languages: slices.Clone(DefaultLanguages),
		Default:   DefaultAgent,
	}
}

// NewRegistry builds a Registry from caps, normalising names and keywords to
// lower case. Empty languages default to DefaultLanguages; an empty default
// falls back to DefaultAgent, or the first agent when that is absent.
func NewRegistry(caps []Capability, languages []string, def string) (Registry, error) {
	if len(caps) == 0 {
		return Registry{}, fmt.Errorf("agent: registry needs at least one agent")
	}
	seen := make(map[string]bool, len(caps))
	agents := make([]Capability, 0, len(caps))
	for i, c := range caps {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return Registry{}, fmt.Errorf("agent: entry %d has no name", i)
		}
		if seen[name] {
			return Registry{}, fmt.Errorf("agent: duplicate agent %q", name)
		}
		seen[name] = true
		agents = append(agents, Capability{
			Name:      name,
			Languages: lowerAll(c.Languages),
			BestFor:   lowerAll(c.BestFor),
		})
	}

	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	r := Registry{Agents: agents, Languages: lowerAll(languages), Default: def}
	if r.Default == "" {
		r.Default = DefaultAgent
	}
	if !seen[r.Default] {
		if def != "" {
			return Registry{}, fmt.Errorf("%w: default %q", ErrUnknownAgent, def)
		}
		r.Default = agents[0].Name
	}
	return r, nil
}

// Names returns agent names in registry order.
func (r Registry) Names() []string {
	out := make([]string, len(r.Agents))
	for i, a := range r.Agents {
		out[i] = a.Name
	}
	return out
}

// Lookup returns the capability named name.
func (r Registry) Lookup(name string) (Capability, bool) {
	for _, a := range r.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return Capability{}, false
}

// Subset returns a registry restricted to names, keeping registry order.
// An empty names list returns r unchanged. When the default agent is not
// kept, the first kept agent becomes the default.
func (r Registry) Subset(names []string) (Registry, error) {
	if len(names) == 0 {
		return r, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := r.Lookup(n); !ok {
			return Registry{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownAgent, n, strings.Join(r.Names(), ", "))
		}
		want[n] = true
	}
	if len(want) == 0 {
		return r, nil
	}

	out := Registry{Languages: slices.Clone(r.Languages), Default: r.Default}
	for _, a := range r.Agents {
		if want[a.Name] {
			out.Agents = append(out.Agents, a)
		}
	}
	if !want[out.Default] {
		out.Default = out.Agents[0].Name
	}
	return out, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
