package providers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/taskrunner/gateway/internal/guard"
)

// Purpose names which pipeline stage is making the call — routing rules
// are keyed on it.
type Purpose string

const (
	PurposeClassify Purpose = "classify"
	PurposePlan     Purpose = "plan"
	PurposeCodeGen  Purpose = "code_gen"
	PurposeAudit    Purpose = "audit"
)

// Complexity is the caller's estimate of how much reasoning a call needs.
// Only classify/plan calls ever carry "low" — audit and code_gen are
// always treated as high regardless of what's passed.
type Complexity string

const (
	ComplexityLow  Complexity = "low"
	ComplexityHigh Complexity = "high"
)

// Router picks the concrete Provider + model name for one Gateway call.
// Rules are evaluated in a fixed order; the first that matches wins
//:
//
//  1. audit always goes remote, on the high-capability model.
//  2. code_gen always goes remote, on the default model.
//  3. low-complexity classify/plan may go local if the local backend is
//     enabled, healthy, and under its RAM threshold.
//  4. once daily spend crosses the budget's escalation fraction,
//     low-complexity calls are forced local (if available at all),
//     trading quality for staying under the cap.
//  5. everything else goes remote, on the default model.
type Router struct {
	remote *RemoteProvider
	local  *LocalProvider
	budget *Budget

	health *localHealth
}

func NewRouter(remote *RemoteProvider, local *LocalProvider, budget *Budget, ramThresholdPct float64) *Router {
	return &Router{
		remote: remote,
		local:  local,
		budget: budget,
		health: newLocalHealth(local, ramThresholdPct),
	}
}

// Route returns the provider to call and the model name to request.
func (r *Router) Route(ctx context.Context, purpose Purpose, complexity Complexity) (Provider, string) {
	if purpose == PurposeAudit {
		return r.remote, r.remote.HighCapModel()
	}
	if purpose == PurposeCodeGen {
		return r.remote, r.remote.DefaultModel()
	}

	wantsLocal := complexity == ComplexityLow && (purpose == PurposeClassify || purpose == PurposePlan)
	if wantsLocal && r.local != nil {
		escalate := r.budget != nil && r.budget.ShouldEscalateToLocal()
		if escalate || r.health.healthy(ctx) {
			return r.local, r.local.DefaultModel()
		}
	}

	return r.remote, r.remote.DefaultModel()
}

// localHealth caches the local backend's reachability so every routing
// decision doesn't pay for a network round trip — the same bounded-cache
// pattern the sandbox's container backend uses for its availability
// check.
type localHealth struct {
	local           *LocalProvider
	ramThresholdPct float64
	ramReader       func() (float64, error)

	mu       sync.Mutex
	lastOK   bool
	lastScan time.Time
	ttl      time.Duration
}

func newLocalHealth(local *LocalProvider, ramThresholdPct float64) *localHealth {
	return &localHealth{
		local:           local,
		ramThresholdPct: ramThresholdPct,
		ttl:             30 * time.Second,
	}
}

// LocalHealthy reports whether the local backend is currently reachable
// and under its RAM threshold, for the `health` command.
func (r *Router) LocalHealthy(ctx context.Context) bool {
	return r.health.healthy(ctx)
}

func (h *localHealth) healthy(ctx context.Context) bool {
	if h.local == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if time.Since(h.lastScan) < h.ttl {
		return h.lastOK
	}
	h.lastScan = time.Now()
	h.lastOK = h.probe(ctx) && h.ramOK()
	return h.lastOK
}

func (h *localHealth) ramOK() bool {
	reader := h.ramReader
	if reader == nil {
		reader = guard.ReadRAMUsedPct
	}
	usedPct, err := reader()
	if err != nil {
		return true // can't tell, don't block routing on it
	}
	return usedPct < h.ramThresholdPct
}

func (h *localHealth) probe(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, h.local.apiBase+"/models", nil)
	if err != nil {
		return false
	}
	resp, err := h.local.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
