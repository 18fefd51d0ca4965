// Package flow runs an ordered list of steps with one agent. Every step
// retrieves context for its task, hands the task to an executor, and writes
// the executor's result back into the context store, so later steps can
// retrieve what earlier steps produced.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDescription is used when a flow definition has no description.
const DefaultDescription = "Complex Workflow"

// ErrFlowNotFound is returned when a flow definition file does not exist.
var ErrFlowNotFound = errors.New("flow: definition file not found")

// Step is one unit of a flow.
type Step struct {
	// Name labels the step in output and feedback metadata.
	Name string `json:"name" yaml:"name"`
	// Task is the text handed to the agent and used as the retrieval query.
	Task string `json:"task" yaml:"task"`
}

// Definition is a flow as read from disk or received over HTTP.
type Definition struct {
	// Description drives agent selection for the whole flow.
	Description string `json:"description" yaml:"description"`
	// Steps run strictly in order.
	Steps []Step `json:"steps" yaml:"steps"`
}

// Normalize fills defaults: the description, and "Step N" for unnamed steps.
func (d *Definition) Normalize() {
	if strings.TrimSpace(d.Description) == "" {
		d.Description = DefaultDescription
	}
	for i := range d.Steps {
		if strings.TrimSpace(d.Steps[i].Name) == "" {
			d.Steps[i].Name = "Step " + strconv.Itoa(i+1)
		}
	}
}

// LoadFile reads a definition from path. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON. A missing file yields an error
// wrapping ErrFlowNotFound.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, path)
		}
		return nil, fmt.Errorf("flow: read %s: %w", path, err)
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("flow: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("flow: parse %s: %w", path, err)
		}
	}
	def.Normalize()
	return &def, nil
}
