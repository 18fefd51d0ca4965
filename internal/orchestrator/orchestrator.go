// Package orchestrator is the entry point of a conductor session. It indexes
// the project once, picks an agent, and runs either a single task or a
// whole flow through the flow runner.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/conductor-go/internal/agent"
	"github.com/54b3r/conductor-go/internal/executor"
	"github.com/54b3r/conductor-go/internal/flow"
	"github.com/54b3r/conductor-go/internal/knowledge"
	"github.com/54b3r/conductor-go/internal/logging"
)

const (
	// DefaultProject is indexed when a request names no project.
	DefaultProject = "."

	// SingleTaskStep names the one step of a single-task run.
	SingleTaskStep = "Single Task"

	// selectionTopK is how many documents inform agent selection.
	selectionTopK = 5
)

// Run modes, also used as metric labels.
const (
	ModeTask = "task"
	ModeFlow = "flow"
)

// Request describes one orchestration run. Task takes precedence when both
// a task and a flow are given.
type Request struct {
	// Task is a single task to run as a one-step flow.
	Task string `json:"task,omitempty"`
	// Flow is an inline flow definition.
	Flow *flow.Definition `json:"flow,omitempty"`
	// FlowPath names a JSON or YAML flow file, used when Flow is nil.
	FlowPath string `json:"flow_path,omitempty"`
	// Project is the tree to index. Empty means the working directory.
	Project string `json:"project,omitempty"`
	// Agents restricts selection to these names. Empty means all.
	Agents []string `json:"agents,omitempty"`
}

// Result is the outcome of a run.
type Result struct {
	RunID      string               `json:"run_id"`
	Mode       string               `json:"mode"`
	Agent      string               `json:"agent"`
	Confidence float64              `json:"confidence"`
	Output     string               `json:"output"`
	Index      knowledge.IndexStats `json:"index"`
	// IndexReused is true when the project was indexed by an earlier run
	// and Index is zero.
	IndexReused bool              `json:"index_reused,omitempty"`
	Steps       []flow.StepReport `json:"steps"`
}

// Knowledge is the context manager surface the orchestrator drives.
type Knowledge interface {
	flow.ContextStore
	IndexProject(ctx context.Context, path string) (knowledge.IndexStats, error)
}

// Orchestrator wires the context manager, selector and executor together.
type Orchestrator struct {
	knowledge Knowledge
	registry  agent.Registry
	runner    *flow.Runner
	metrics   *Metrics

	indexOnce bool
	indexMu   sync.Mutex
	indexed   map[string]bool
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Knowledge Knowledge
	Registry  agent.Registry
	Executor  executor.Executor
	// Metrics may be nil to disable instrumentation.
	Metrics *Metrics
	// IndexOnce indexes each project root only on its first run. Long-lived
	// processes sharing one store set it; otherwise every run appends
	// another copy of the project.
	IndexOnce bool
}

// New validates cfg and returns an Orchestrator. A zero Registry selects
// agent.DefaultRegistry and a nil Executor selects executor.Template. When
// the executor implements executor.Restricted, the registry is narrowed to
// the agents it can run.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Knowledge == nil {
		return nil, fmt.Errorf("orchestrator: knowledge must not be nil")
	}
	reg := cfg.Registry
	if len(reg.Agents) == 0 {
		reg = agent.DefaultRegistry()
	}
	exec := cfg.Executor
	if exec == nil {
		exec = executor.Template{}
	}
	if rx, ok := exec.(executor.Restricted); ok {
		narrowed, err := runnableAgents(reg, rx.Agents())
		if err != nil {
			return nil, err
		}
		reg = narrowed
	}
	o := &Orchestrator{
		knowledge: cfg.Knowledge,
		registry:  reg,
		metrics:   cfg.Metrics,
		indexOnce: cfg.IndexOnce,
		indexed:   make(map[string]bool),
	}
	runner, err := flow.NewRunner(context.Background(), cfg.Knowledge, exec, flow.Options{OnStep: o.observeStep})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	o.runner = runner
	return o, nil
}

// runnableAgents keeps the registry agents present in supported, in
// registry order.
func runnableAgents(reg agent.Registry, supported []string) (agent.Registry, error) {
	var keep []string
	for _, name := range reg.Names() {
		if slices.Contains(supported, name) {
			keep = append(keep, name)
		}
	}
	if len(keep) == 0 {
		return agent.Registry{}, fmt.Errorf("orchestrator: executor runs none of the registry agents (%s)", strings.Join(reg.Names(), ", "))
	}
	reg, err := reg.Subset(keep)
	if err != nil {
		return agent.Registry{}, fmt.Errorf("orchestrator: %w", err)
	}
	return reg, nil
}

// Registry returns the agent registry runs select from.
func (o *Orchestrator) Registry() agent.Registry { return o.registry }

// Run executes req. With neither a task nor a flow it logs a warning and
// returns nil, nil. A flow file that does not exist fails before anything is
// indexed. Otherwise the project is indexed once, an agent is selected, and
// the steps run in order.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	runID := uuid.NewString()
	ctx = logging.WithRun(ctx, runID)
	ctx = flow.WithRunID(ctx, runID)
	log := logging.FromContext(ctx)
	start := time.Now()

	task := strings.TrimSpace(req.Task)
	def := req.Flow
	if task == "" && def == nil && req.FlowPath != "" {
		loaded, err := flow.LoadFile(req.FlowPath)
		if err != nil {
			o.observeRun(ModeFlow, "error", start)
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		def = loaded
	}
	if task == "" && def == nil {
		log.Warn("orchestrator: no task or flow provided, nothing to do")
		o.observeRun("none", "noop", start)
		return nil, nil
	}

	mode := ModeTask
	var query string
	var steps []flow.Step
	if task != "" {
		query = task
		steps = []flow.Step{{Name: SingleTaskStep, Task: task}}
	} else {
		mode = ModeFlow
		d := *def
		d.Steps = append([]flow.Step(nil), def.Steps...)
		d.Normalize()
		query = d.Description
		steps = d.Steps
	}

	res, err := o.run(ctx, req, mode, query, steps)
	if err != nil {
		o.observeRun(mode, "error", start)
		return res, err
	}
	res.RunID = runID
	o.observeRun(mode, "ok", start)
	log.Info("orchestrator: run complete",
		slog.String("mode", mode),
		slog.String("agent", res.Agent),
		slog.Int("steps", len(res.Steps)),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, mode, query string, steps []flow.Step) (*Result, error) {
	log := logging.FromContext(ctx)

	reg, err := o.registry.Subset(req.Agents)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	project := req.Project
	if project == "" {
		project = DefaultProject
	}
	stats, reused, err := o.index(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if o.metrics != nil {
		o.metrics.indexedChunksTotal.Add(float64(stats.Chunks))
		o.metrics.skippedFilesTotal.Add(float64(stats.Skipped))
	}

	docs, err := o.knowledge.Retrieve(ctx, query, selectionTopK)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	sel := agent.NewSelector(reg)
	choice := sel.Select(query, docs)
	if o.metrics != nil {
		o.metrics.selectionsTotal.WithLabelValues(choice.Agent, strconv.FormatBool(choice.Fallback)).Inc()
	}
	log.Info("orchestrator: selected agent",
		slog.String("mode", mode),
		slog.String("agent", choice.Agent),
		slog.Float64("confidence", choice.Confidence),
		slog.Bool("fallback", choice.Fallback),
	)
	if log.Enabled(ctx, slog.LevelDebug) {
		for _, sc := range sel.Scores(query, docs) {
			log.Debug("orchestrator: agent score", slog.String("agent", sc.Agent), slog.Float64("score", sc.Value()))
		}
	}

	fr, err := o.runner.Run(ctx, choice.Agent, steps)

	res := &Result{
		Mode:        mode,
		Agent:       choice.Agent,
		Confidence:  choice.Confidence,
		Index:       stats,
		IndexReused: reused,
	}
	if fr != nil {
		res.Output = fr.Output
		res.Steps = fr.Steps
	}
	if err != nil {
		return res, fmt.Errorf("orchestrator: %w", err)
	}
	return res, nil
}

// index indexes project, or with IndexOnce skips a root an earlier run
// already indexed. A failed index is not remembered.
func (o *Orchestrator) index(ctx context.Context, project string) (knowledge.IndexStats, bool, error) {
	if !o.indexOnce {
		stats, err := o.knowledge.IndexProject(ctx, project)
		return stats, false, err
	}

	root, err := filepath.Abs(project)
	if err != nil {
		return knowledge.IndexStats{}, false, fmt.Errorf("resolve project %s: %w", project, err)
	}
	o.indexMu.Lock()
	defer o.indexMu.Unlock()
	if o.indexed[root] {
		logging.FromContext(ctx).Debug("orchestrator: project already indexed", slog.String("project", root))
		return knowledge.IndexStats{}, true, nil
	}
	stats, err := o.knowledge.IndexProject(ctx, root)
	if err != nil {
		return stats, false, err
	}
	o.indexed[root] = true
	return stats, false, nil
}

func (o *Orchestrator) observeStep(r flow.StepReport) {
	if o.metrics == nil {
		return
	}
	outcome := "ok"
	if r.Err != nil {
		outcome = "error"
	}
	o.metrics.stepsTotal.WithLabelValues(r.Agent, outcome).Inc()
	o.metrics.stepDurationSeconds.WithLabelValues(r.Agent).Observe(r.Duration.Seconds())
}

func (o *Orchestrator) observeRun(mode, outcome string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.runsTotal.WithLabelValues(mode, outcome).Inc()
	o.metrics.runDurationSeconds.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}

// IsNotFound reports whether err stems from a missing flow file.
func IsNotFound(err error) bool {
	return errors.Is(err, flow.ErrFlowNotFound)
}
