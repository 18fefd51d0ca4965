package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/orchestrator"
)

// NewRunCmd constructs the `conductor run` command, which indexes a project,
// selects an agent, and runs a single task or a flow file through it.
func NewRunCmd() *cobra.Command {
	var (
		task     string
		flowPath string
		project  string
		agents   []string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a task or a flow through the best-suited agent",
		Long: `Index the project, pick an agent for the task (or the flow's description),
and execute. A flow runs its steps in order; every step's output is written
back into the context store before the next step retrieves.

Flow files are JSON, or YAML when the name ends in .yaml or .yml:

  description: Fix the parser
  steps:
    - name: Analyze
      task: Analyze the tokenizer for off-by-one bugs
    - name: Fix
      task: Implement the fix

Examples:
  conductor run --task "Refactor the config loader"
  conductor run --flow flows/fix.yaml --project ./service
  conductor run --task "Translate the README" --agents qwen,gemini`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()

			defer setupTracing(log)()

			sess, err := openSession(ctx, log)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			defer func() { _ = sess.Close() }()

			orch, err := newOrchestrator(sess, nil, false)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			start := time.Now()
			res, err := orch.Run(ctx, orchestrator.Request{
				Task:     task,
				FlowPath: flowPath,
				Project:  project,
				Agents:   agents,
			})
			if err != nil {
				if res != nil && res.Output != "" {
					fmt.Fprint(out, res.Output)
				}
				printStatus(errOut, "✗", err.Error(), color.FgRed)
				return fmt.Errorf("run: %w", err)
			}
			if res == nil {
				printStatus(errOut, "⚠", "no task or flow provided, nothing to do (use --task or --flow)", color.FgYellow)
				return nil
			}

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			label := fmt.Sprintf("agent %s (confidence %.2f)", color.CyanString(res.Agent), res.Confidence)
			printStatus(errOut, "✓", fmt.Sprintf("indexed %d files, %d chunks", res.Index.Files, res.Index.Chunks), color.FgGreen)
			printStatus(errOut, "→", label, color.FgCyan)
			fmt.Fprint(out, res.Output)
			printStatus(errOut, "✓", fmt.Sprintf("%d step(s) in %s", len(res.Steps), time.Since(start).Round(time.Millisecond)), color.FgGreen)

			log.Debug("run finished", slog.String("run_id", res.RunID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&task, "task", "t", "", "Single task to run")
	cmd.Flags().StringVarP(&flowPath, "flow", "f", "", "Path to a JSON or YAML flow definition")
	cmd.Flags().StringVarP(&project, "project", "p", orchestrator.DefaultProject, "Project directory to index")
	cmd.Flags().StringSliceVarP(&agents, "agents", "a", nil, "Restrict selection to these agents (comma separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}
