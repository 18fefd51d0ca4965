// Package executor defines how a flow step is handed to an agent. The core
// never talks to an agent directly: it builds a Request and calls an
// Executor, which may format a canned reply, run a subprocess, or be a test
// double.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/54b3r/conductor-go/internal/rag"
)

// Request is one unit of work for an agent.
type Request struct {
	// Agent is the selected agent name.
	Agent string
	// Step is the flow step name.
	Step string
	// Task is the step's task text.
	Task string
	// Documents is the context retrieved for the task, best match first.
	Documents []rag.Document
}

// ContextText joins the documents into the text form agents receive.
func (r Request) ContextText() string {
	return FormatContext(r.Documents)
}

// FormatContext renders docs as source-labelled blocks separated by blank lines.
func FormatContext(docs []rag.Document) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if d.Source != "" {
			fmt.Fprintf(&b, "[%s]\n", d.Source)
		}
		b.WriteString(d.Content)
	}
	return b.String()
}

// Executor runs a request and returns the agent's free-text result.
// Implementations own their own timeouts and retries.
type Executor interface {
	Execute(ctx context.Context, req Request) (string, error)
}

// Restricted is implemented by executors that can run only some agents.
type Restricted interface {
	// Agents lists the agent names the executor can run.
	Agents() []string
}

// Func adapts an ordinary function to the Executor interface.
type Func func(ctx context.Context, req Request) (string, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Template is the reference executor. It makes no external call and reports
// what it would have done.
type Template struct{}

// Execute returns "Result of task '<task>' executed by <agent>. Context used: <n> docs."
func (Template) Execute(_ context.Context, req Request) (string, error) {
	return fmt.Sprintf("Result of task '%s' executed by %s. Context used: %d docs.", req.Task, req.Agent, len(req.Documents)), nil
}
