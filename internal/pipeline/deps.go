package pipeline

import (
	"github.com/taskrunner/gateway/internal/providers"
	"github.com/taskrunner/gateway/internal/projects"
	"github.com/taskrunner/gateway/internal/sandbox"
	"github.com/taskrunner/gateway/internal/store"
)

// MaxRetries bounds the Audit→Plan back-edge.
const MaxRetries = 3

// Deps bundles every collaborator a node needs, injected once by the
// coordinator when it builds the graph.
type Deps struct {
	Gateway    *providers.Gateway
	Sandbox    *sandbox.Guard
	Registry   *projects.Registry
	Standards  *projects.StandardsLoader
	Stores     *store.Stores

	ExecTimeoutSec     int
	PipelineMaxRetries int
	OutputsDir         string
	FileInjectionCap   int
}

func (d *Deps) maxRetries() int {
	if d.PipelineMaxRetries > 0 {
		return d.PipelineMaxRetries
	}
	return MaxRetries
}
