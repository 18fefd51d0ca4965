// Package server implements the HTTP API in front of the orchestrator.
// The server is started by the `conductor serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/conductor-go/internal/agent"
	"github.com/54b3r/conductor-go/internal/logging"
	"github.com/54b3r/conductor-go/internal/orchestrator"
	"github.com/54b3r/conductor-go/internal/version"
)

// maxRequestBytes bounds the POST /api/run body.
const maxRequestBytes = 1 << 20

// New constructs a Server from the provided runner and config.
func New(runner Runner, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("server: runner must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.RunTimeout == 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.RunTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		runner:  runner,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.metrics.rateLimitedTotal)
	s.stopRL = stop

	if cfg.APIKey == "" {
		log.Warn("server: authentication disabled, set CONDUCTOR_API_KEY to protect /api/run")
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.routes(rl),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the handler tree. Health, readiness and metrics stay open
// for probes; everything that touches the orchestrator requires the API key.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	m := s.metrics
	mux := http.NewServeMux()
	mux.Handle("POST /api/run", m.instrument("run",
		authMiddleware(s.cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleRun)))))
	mux.Handle("GET /api/agents", m.instrument("agents",
		authMiddleware(s.cfg.APIKey, http.HandlerFunc(s.handleAgents))))
	mux.Handle("GET /api/health", m.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", m.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))
	return requestLogger(s.log, mux)
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	defer s.stopRL()

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleRun handles POST /api/run. Runs are serialised: a second request
// waits for the first to finish.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.metrics.runRequestsTotal.WithLabelValues("bad_request").Inc()
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Task) == "" && req.Flow == nil {
		s.metrics.runRequestsTotal.WithLabelValues("bad_request").Inc()
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "task or flow is required"})
		return
	}
	if req.Flow != nil && strings.TrimSpace(req.Task) == "" && len(req.Flow.Steps) == 0 {
		s.metrics.runRequestsTotal.WithLabelValues("bad_request").Inc()
		writeJSON(w, log, http.StatusBadRequest, errorResponse{Error: "flow has no steps"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RunTimeout)
	defer cancel()

	s.metrics.runWaiting.Inc()
	s.runMu.Lock()
	s.metrics.runWaiting.Dec()
	s.metrics.runActive.Set(1)
	res, err := s.runner.Run(ctx, orchestrator.Request{
		Task:    req.Task,
		Flow:    req.Flow,
		Project: req.Project,
		Agents:  req.Agents,
	})
	s.metrics.runActive.Set(0)
	s.runMu.Unlock()

	if err != nil {
		status, outcome := http.StatusInternalServerError, "error"
		switch {
		case errors.Is(err, agent.ErrUnknownAgent):
			status, outcome = http.StatusBadRequest, "bad_request"
		case errors.Is(err, context.DeadlineExceeded):
			status, outcome = http.StatusGatewayTimeout, "timeout"
		}
		log.Error("server: run failed", slog.Any("error", err))
		s.metrics.runRequestsTotal.WithLabelValues(outcome).Inc()
		writeJSON(w, log, status, errorResponse{Error: err.Error(), Result: res})
		return
	}

	s.metrics.runRequestsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, log, http.StatusOK, res)
}

// handleAgents handles GET /api/agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	reg := s.runner.Registry()
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, agentsResponse{Agents: reg.Agents, Default: reg.Default})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// writeJSON encodes v with status. Encoding failures are logged since the
// header has already been sent.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("server: encode response", slog.Any("error", err))
	}
}
