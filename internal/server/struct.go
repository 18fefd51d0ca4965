package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/conductor-go/internal/agent"
	"github.com/54b3r/conductor-go/internal/flow"
	"github.com/54b3r/conductor-go/internal/orchestrator"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// It must exceed RunTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// RunTimeout bounds a single POST /api/run, indexing included.
	// Defaults to 10 minutes if zero.
	RunTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [slog.Default] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per caller on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per caller. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Runner is the orchestration surface the server exposes.
// *orchestrator.Orchestrator satisfies it; tests inject a fake.
type Runner interface {
	// Run executes one orchestration request.
	Run(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	// Registry returns the agents a request may select from.
	Registry() agent.Registry
}

// Server is the HTTP server in front of the orchestrator.
type Server struct {
	// runner executes orchestration requests.
	runner Runner
	// runMu serialises runs. The context store is append-only and a flow's
	// feedback must be visible to its own next step before anything else writes.
	runMu sync.Mutex
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// runRequest is the JSON body for POST /api/run.
type runRequest struct {
	// Task is a single task. It wins over Flow when both are set.
	Task string `json:"task"`
	// Flow is an inline flow definition.
	Flow *flow.Definition `json:"flow"`
	// Project is the directory to index, resolved on the server host.
	Project string `json:"project"`
	// Agents restricts selection to the named agents.
	Agents []string `json:"agents"`
}

// errorResponse is the JSON body for failed requests.
type errorResponse struct {
	// Error is the failure reason.
	Error string `json:"error"`
	// Result carries the steps that completed before a flow failed.
	Result *orchestrator.Result `json:"result,omitempty"`
}

// agentsResponse is the JSON body for GET /api/agents.
type agentsResponse struct {
	// Agents is the registry in tie-break order.
	Agents []agent.Capability `json:"agents"`
	// Default is the fallback agent.
	Default string `json:"default"`
}
