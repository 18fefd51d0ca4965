package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/conductor-go/internal/agent"
	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/orchestrator"
	"github.com/54b3r/conductor-go/internal/rag"
)

// explainTopK matches the number of documents the orchestrator uses to select.
const explainTopK = 5

// NewExplainCmd constructs the `conductor explain` command, which shows how
// every agent scores for a task without executing anything.
func NewExplainCmd() *cobra.Command {
	var (
		project string
		agents  []string
		index   bool
	)

	cmd := &cobra.Command{
		Use:   "explain <task>",
		Short: "Show how each agent scores for a task",
		Long: `Retrieve context for the task and print every agent's score breakdown:
capability keywords and languages found in the task and in the retrieved
context, plus the flat bonus for wildcard agents. Nothing is executed and no
feedback is written.

Examples:
  conductor explain "Fix the rust parser bug"
  VECTOR_STORE=sqlite conductor explain "Translate docs"    # scores against the stored index
  conductor explain --index=false "Translate docs"          # memory store: task text only

The project is indexed first only with the memory store; pass --index to add
another copy to a persisted store.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			task := strings.Join(args, " ")

			full, err := loadedConfig.Registry()
			if err != nil {
				return fmt.Errorf("explain: %w", err)
			}
			reg, err := full.Subset(agents)
			if err != nil {
				return fmt.Errorf("explain: %w", err)
			}

			sess, err := openSession(ctx, log)
			if err != nil {
				return fmt.Errorf("explain: %w", err)
			}
			defer func() { _ = sess.Close() }()

			if !cmd.Flags().Changed("index") {
				index = indexByDefault(rag.StoreConfigFromEnv(0).Backend)
			}
			if index {
				if _, err := sess.knowledge.IndexProject(ctx, project); err != nil {
					return fmt.Errorf("explain: %w", err)
				}
			}
			docs, err := sess.knowledge.Retrieve(ctx, task, explainTopK)
			if err != nil {
				return fmt.Errorf("explain: %w", err)
			}

			sel := agent.NewSelector(reg)
			choice := sel.Select(task, docs)

			w := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "AGENT\tSCORE\tTASK\tCONTEXT\tWILDCARD")
			for _, sc := range sel.Scores(task, docs) {
				name := sc.Agent
				if name == choice.Agent {
					name += " *"
				}
				fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%t\n",
					name,
					sc.Value(),
					orDash(append(append([]string(nil), sc.Keywords...), sc.Languages...)),
					orDash(append(append([]string(nil), sc.ContextKeywords...), sc.ContextLanguages...)),
					sc.Universal,
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(w)
			if choice.Fallback {
				printStatus(w, "⚠", fmt.Sprintf("no agent matched; falling back to %s (confidence %.2f)", choice.Agent, choice.Confidence), color.FgYellow)
			} else {
				printStatus(w, "→", fmt.Sprintf("selected %s (confidence %.2f, %d context docs)", choice.Agent, choice.Confidence, len(docs)), color.FgCyan)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", orchestrator.DefaultProject, "Project directory to index")
	cmd.Flags().StringSliceVarP(&agents, "agents", "a", nil, "Restrict selection to these agents (comma separated)")
	cmd.Flags().BoolVar(&index, "index", false, "Index the project before retrieving (default true for the memory store)")
	return cmd
}

func orDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
