// Package commands defines all Cobra CLI commands for the conductor binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/conductor-go/internal/audit"
	"github.com/54b3r/conductor-go/internal/config"
	"github.com/54b3r/conductor-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfig is the resolved YAML config. It is never nil once
// PersistentPreRunE has run.
var loadedConfig = &config.Config{}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "conductor",
		Short: "Conductor routes coding tasks to the best-suited agent",
		Long: `Conductor indexes a project into a vector store, scores a set of coding
agents against each task and the retrieved context, and runs single tasks or
multi-step flows through the winner. Every step's result is written back to
the store so later steps can build on it.

Embedding and storage backends are selected via environment variables
(EMBEDDING_PROVIDER, VECTOR_STORE) or a YAML config file
(~/.conductor/config.yaml). See 'conductor --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load YAML config first so LOG_LEVEL/LOG_FORMAT from the file apply.
			cfg, err := config.Load(configPath, logging.New())
			if err != nil {
				return err
			}
			loadedConfig = cfg

			log := logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), cfg.Path)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.conductor/config.yaml)")

	root.AddCommand(
		NewRunCmd(),
		NewIndexCmd(),
		NewSearchCmd(),
		NewExplainCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
