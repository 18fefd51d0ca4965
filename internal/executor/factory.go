package executor

import (
	"fmt"
	"os"
	"strconv"
)

// Executor kinds accepted by EXECUTOR.
const (
	KindTemplate = "template"
	KindCommand  = "command"
)

// New returns the executor named by kind. Empty kind means template.
func New(kind string, cfg CommandConfig) (Executor, error) {
	switch kind {
	case "", KindTemplate:
		return Template{}, nil
	case KindCommand:
		return NewCommand(cfg)
	default:
		return nil, fmt.Errorf("executor: unknown kind %q, valid values: template, command", kind)
	}
}

// NewFromEnv builds the executor named by EXECUTOR. cfg supplies the agent
// commands; EXECUTOR_MAX_CONTEXT_TOKENS overrides its context budget.
func NewFromEnv(cfg CommandConfig) (Executor, error) {
	if v := os.Getenv("EXECUTOR_MAX_CONTEXT_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("executor: EXECUTOR_MAX_CONTEXT_TOKENS: %w", err)
		}
		cfg.MaxContextTokens = n
	}
	return New(os.Getenv("EXECUTOR"), cfg)
}
