package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/orchestrator"
	"github.com/54b3r/conductor-go/internal/server"
)

// NewServeCmd constructs the `conductor serve` command, which starts the HTTP
// API in front of a long-lived orchestrator.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the conductor HTTP API",
		Long: `Start the conductor HTTP server.

Endpoints:
  POST /api/run      run a task or inline flow (Bearer auth, rate limited)
  GET  /api/agents   list the agent registry (Bearer auth)
  GET  /api/health   liveness
  GET  /api/ready    readiness of the embedder and vector store
  GET  /metrics      Prometheus metrics

Runs are serialised and share one context store for the life of the process,
so feedback from earlier runs is retrievable by later ones. Each project root
is indexed on its first run only.

Examples:
  conductor serve
  conductor serve --port 9090
  CONDUCTOR_API_KEY=s3cret VECTOR_STORE=qdrant conductor serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.FromContext(ctx)
			defer setupTracing(log)()

			sess, err := openSession(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = sess.Close() }()

			orch, err := newOrchestrator(sess, orchestrator.NewMetrics(prometheus.DefaultRegisterer), true)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			if !cmd.Flags().Changed("host") && loadedConfig.Server.Host != "" {
				host = loadedConfig.Server.Host
			}
			if !cmd.Flags().Changed("port") && loadedConfig.Server.Port != 0 {
				port = loadedConfig.Server.Port
			}

			srv, err := server.New(orch, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: buildPingers(sess),
				APIKey:  os.Getenv("CONDUCTOR_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting", slog.Int("agents", len(orch.Registry().Agents)))
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
