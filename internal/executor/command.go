package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os/exec"
	"slices"
	"strings"

	"github.com/54b3r/conductor-go/internal/budget"
	"github.com/54b3r/conductor-go/internal/logging"
)

// stderrTokens bounds how much of a failing agent's stderr ends up in the error.
const stderrTokens = 512

// Command runs a configured program per agent. The task is appended as the
// final argument and the retrieved context is written to stdin. Stdout,
// trimmed, is the result.
type Command struct {
	commands  map[string][]string
	maxTokens int
	dir       string
}

// CommandConfig configures a Command executor.
type CommandConfig struct {
	// Commands maps agent name to argv. The first element is the program.
	Commands map[string][]string
	// MaxContextTokens bounds the context sent on stdin. Zero means
	// budget.DefaultMaxContextTokens; negative disables trimming.
	MaxContextTokens int
	// Dir is the working directory for every command. Empty inherits ours.
	Dir string
}

// NewCommand validates cfg and checks every program is on PATH.
func NewCommand(cfg CommandConfig) (*Command, error) {
	if len(cfg.Commands) == 0 {
		return nil, fmt.Errorf("executor: no agent commands configured")
	}
	cmds := make(map[string][]string, len(cfg.Commands))
	for agent, argv := range cfg.Commands {
		if len(argv) == 0 || argv[0] == "" {
			return nil, fmt.Errorf("executor: agent %q has an empty command", agent)
		}
		if _, err := exec.LookPath(argv[0]); err != nil {
			return nil, fmt.Errorf("executor: agent %q: %s not found on PATH: %w", agent, argv[0], err)
		}
		cmds[agent] = append([]string(nil), argv...)
	}
	maxTokens := cfg.MaxContextTokens
	if maxTokens == 0 {
		maxTokens = budget.DefaultMaxContextTokens
	}
	return &Command{commands: cmds, maxTokens: maxTokens, dir: cfg.Dir}, nil
}

// Agents returns the configured agent names, sorted.
func (c *Command) Agents() []string {
	return slices.Sorted(maps.Keys(c.commands))
}

// Execute runs the agent's command. A non-zero exit is an error carrying stderr.
func (c *Command) Execute(ctx context.Context, req Request) (string, error) {
	argv, ok := c.commands[req.Agent]
	if !ok {
		return "", fmt.Errorf("executor: no command configured for agent %q", req.Agent)
	}

	docs := budget.TrimDocuments(req.Documents, c.maxTokens)
	if len(docs) < len(req.Documents) {
		logging.FromContext(ctx).Debug("executor: trimmed context to budget",
			slog.String("agent", req.Agent),
			slog.Int("kept", len(docs)),
			slog.Int("dropped", len(req.Documents)-len(docs)),
		)
	}

	args := append(append([]string(nil), argv[1:]...), req.Task)
	cmd := exec.CommandContext(ctx, argv[0], args...)
	cmd.Dir = c.dir
	cmd.Stdin = strings.NewReader(FormatContext(docs))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := budget.Truncate(strings.TrimSpace(stderr.String()), stderrTokens)
			return "", fmt.Errorf("executor: agent %q exited %d: %s", req.Agent, exitErr.ExitCode(), msg)
		}
		return "", fmt.Errorf("executor: run agent %q: %w", req.Agent, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
