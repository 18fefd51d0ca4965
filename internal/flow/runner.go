package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/54b3r/conductor-go/internal/executor"
	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/rag"
)

// DefaultStepTopK is how many documents each step retrieves.
const DefaultStepTopK = 3

// MetaRunID tags feedback documents with the run that wrote them.
const MetaRunID = "run_id"

// ContextStore is the slice of the context manager a flow needs.
type ContextStore interface {
	Retrieve(ctx context.Context, query string, k int) ([]rag.Document, error)
	AddResult(ctx context.Context, text string, metadata map[string]string) error
}

// StepReport describes one executed step.
type StepReport struct {
	Name      string        `json:"name"`
	Task      string        `json:"task"`
	Agent     string        `json:"agent"`
	Output    string        `json:"output"`
	Documents int           `json:"documents"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// Result is the outcome of a flow.
type Result struct {
	// Output is every step's output followed by a newline, in step order.
	Output string `json:"output"`
	// Steps reports each step that ran.
	Steps []StepReport `json:"steps"`
}

// Options configures a Runner.
type Options struct {
	// TopK is the per-step retrieval size. Zero means DefaultStepTopK.
	TopK int
	// OnStep, if set, is called after every step, including a failed one.
	OnStep func(StepReport)
}

// stepState flows through the compiled step chain.
type stepState struct {
	runID  string
	agent  string
	step   Step
	docs   []rag.Document
	output string
}

// Runner executes flows. The step pipeline (retrieve, execute, feedback) is
// compiled once as an eino chain and invoked per step, so registered eino
// callbacks see every step as a traced graph run.
type Runner struct {
	store  ContextStore
	exec   executor.Executor
	topK   int
	onStep func(StepReport)
	chain  compose.Runnable[*stepState, *stepState]
}

// NewRunner compiles the step pipeline.
func NewRunner(ctx context.Context, store ContextStore, exec executor.Executor, opts Options) (*Runner, error) {
	if store == nil {
		return nil, fmt.Errorf("flow: context store must not be nil")
	}
	if exec == nil {
		return nil, fmt.Errorf("flow: executor must not be nil")
	}
	r := &Runner{store: store, exec: exec, topK: opts.TopK, onStep: opts.OnStep}
	if r.topK <= 0 {
		r.topK = DefaultStepTopK
	}

	chain := compose.NewChain[*stepState, *stepState]()
	chain.
		AppendLambda(compose.InvokableLambda(r.retrieve), compose.WithNodeName("retrieve")).
		AppendLambda(compose.InvokableLambda(r.execute), compose.WithNodeName("execute")).
		AppendLambda(compose.InvokableLambda(r.feedback), compose.WithNodeName("feedback"))

	compiled, err := chain.Compile(ctx, compose.WithGraphName("flow_step"))
	if err != nil {
		return nil, fmt.Errorf("flow: compile step chain: %w", err)
	}
	r.chain = compiled
	return r, nil
}

func (r *Runner) retrieve(ctx context.Context, s *stepState) (*stepState, error) {
	docs, err := r.store.Retrieve(ctx, s.step.Task, r.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	s.docs = docs
	return s, nil
}

func (r *Runner) execute(ctx context.Context, s *stepState) (*stepState, error) {
	out, err := r.exec.Execute(ctx, executor.Request{
		Agent:     s.agent,
		Step:      s.step.Name,
		Task:      s.step.Task,
		Documents: s.docs,
	})
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	s.output = out
	return s, nil
}

func (r *Runner) feedback(ctx context.Context, s *stepState) (*stepState, error) {
	meta := map[string]string{
		rag.MetaAgent: s.agent,
		rag.MetaStep:  s.step.Name,
	}
	if s.runID != "" {
		meta[MetaRunID] = s.runID
	}
	if err := r.store.AddResult(ctx, s.output, meta); err != nil {
		return nil, fmt.Errorf("feedback: %w", err)
	}
	return s, nil
}

// Run executes steps in order with agent. Each step's feedback write
// completes before the next step retrieves. The first failure stops the flow
// and is returned with the step name; the partial result is returned too.
func (r *Runner) Run(ctx context.Context, agent string, steps []Step) (*Result, error) {
	log := logging.FromContext(ctx)
	runID := RunIDFromContext(ctx)

	res := &Result{Steps: make([]StepReport, 0, len(steps))}
	var out strings.Builder

	for i, step := range steps {
		if step.Name == "" {
			step.Name = fmt.Sprintf("Step %d", i+1)
		}
		log.Info("flow: executing step",
			slog.String("agent", agent),
			slog.String("step", step.Name),
			slog.Int("index", i),
		)

		start := time.Now()
		state, err := r.chain.Invoke(ctx, &stepState{runID: runID, agent: agent, step: step})
		report := StepReport{
			Name:     step.Name,
			Task:     step.Task,
			Agent:    agent,
			Duration: time.Since(start),
			Err:      err,
		}
		if err == nil {
			report.Output = state.output
			report.Documents = len(state.docs)
		}
		res.Steps = append(res.Steps, report)
		if r.onStep != nil {
			r.onStep(report)
		}

		if err != nil {
			res.Output = out.String()
			return res, fmt.Errorf("flow: step %q: %w", step.Name, err)
		}

		out.WriteString(state.output)
		out.WriteString("\n")
	}

	res.Output = out.String()
	return res, nil
}

type runIDKey struct{}

// WithRunID returns a child context carrying id, which Run writes into
// feedback metadata.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run ID stored by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
