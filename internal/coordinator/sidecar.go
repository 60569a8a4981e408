package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskrunner/gateway/internal/pipeline"
)

// ReadSidecar loads the debug sidecar for the task whose id starts with
// prefix (the `debug` command accepts an id prefix of at least 8
// characters).
func (c *Coordinator) ReadSidecar(prefix string) (*pipeline.DebugSidecar, error) {
	if len(prefix) < 8 {
		return nil, fmt.Errorf("coordinator: task id prefix must be at least 8 characters")
	}

	task, ok := c.stores.Tasks.GetByPrefix(prefix)
	if !ok {
		return nil, ErrTaskNotFound
	}

	path := filepath.Join(c.deps.OutputsDir, task.ID+".debug.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coordinator: no debug sidecar for task %s: %w", task.ID, err)
	}

	var sidecar pipeline.DebugSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("coordinator: malformed debug sidecar: %w", err)
	}
	return &sidecar, nil
}
