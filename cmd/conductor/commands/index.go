package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/54b3r/conductor-go/internal/logging"
)

// NewIndexCmd constructs the `conductor index` command, which loads, splits,
// embeds and stores a project without running anything. With a persistent
// store (VECTOR_STORE=sqlite or qdrant) later searches see the result.
func NewIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a project into the context store",
		Long: `Walk the project, split every matching file into overlapping chunks, embed
them and append them to the context store. Indexing is not idempotent: the
store is append-only, so indexing the same tree twice stores it twice.

Relevant environment variables:
  VECTOR_STORE         memory (default), sqlite, qdrant
  VECTOR_STORE_DIR     sqlite directory (default: ~/.conductor/vectors)
  VECTOR_COLLECTION    collection name (default: conductor)
  EMBEDDING_PROVIDER   hash (default), ollama, openai, azure
  CHUNK_SIZE           runes per chunk (default: 1000)
  CHUNK_OVERLAP        runes shared by neighbours (default: 200)
  INDEX_GLOBS          comma separated globs (default: **/*.md,**/*.rs,**/*.py,**/*.toml)

Examples:
  VECTOR_STORE=sqlite conductor index ./service
  conductor index`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			sess, err := openSession(ctx, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer func() { _ = sess.Close() }()

			stats, err := sess.knowledge.IndexProject(ctx, path)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			total, err := sess.knowledge.Count(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			w := cmd.OutOrStdout()
			printStatus(w, "✓", fmt.Sprintf("indexed %d files into %d chunks (%d entries in store)", stats.Files, stats.Chunks, total), color.FgGreen)
			if stats.Skipped > 0 {
				printStatus(w, "⚠", fmt.Sprintf("skipped %d unreadable files", stats.Skipped), color.FgYellow)
			}
			return nil
		},
	}
	return cmd
}
