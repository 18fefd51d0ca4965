package commands

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/rag"
)

// snippetRunes bounds how much of each hit is printed.
const snippetRunes = 240

// NewSearchCmd constructs the `conductor search` command, which queries the
// context store directly. It is most useful with a persistent store.
func NewSearchCmd() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the context store",
		Long: `Embed the query and print the k most similar stored chunks with their
similarity scores. Ties are listed in insertion order.

Examples:
  VECTOR_STORE=sqlite conductor search "config loader" -k 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)
			query := strings.Join(args, " ")

			sess, err := openSession(ctx, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer func() { _ = sess.Close() }()

			docs, err := sess.knowledge.Retrieve(ctx, query, k)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(docs) == 0 {
				printStatus(w, "⚠", "no documents found; run 'conductor index' with a persistent VECTOR_STORE first", color.FgYellow)
				return nil
			}
			for i, d := range docs {
				fmt.Fprintf(w, "%s %s %s\n",
					color.New(color.Bold).Sprintf("%d.", i+1),
					color.CyanString(sourceLabel(d)),
					color.New(color.Faint).Sprintf("(%.3f)", d.Score),
				)
				fmt.Fprintf(w, "   %s\n\n", snippet(d.Content))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "top-k", "k", rag.DefaultTopK, "Number of results")
	return cmd
}

func sourceLabel(d rag.Document) string {
	src := d.Source
	if src == "" {
		src = d.Metadata[rag.MetaSource]
	}
	if agent := d.Metadata[rag.MetaAgent]; agent != "" {
		src += " [" + agent + "/" + d.Metadata[rag.MetaStep] + "]"
	}
	return src
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= snippetRunes {
		return s
	}
	return string(r[:snippetRunes]) + "…"
}
