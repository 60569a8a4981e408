package pipeline

import "context"

// Graph wires the five nodes in fixed order with one conditional
// back-edge from Audit to Plan, bounded by Deps.maxRetries. It is built
// once and reused across every task run; all mutable per-run state
// lives in the PipelineState the caller passes in, not in the Graph
// itself.
type Graph struct {
	classify Node
	plan     Node
	execute  Node
	audit    Node
	deliver  Node
	deps     *Deps
}

// NewGraph builds the fixed graph over deps, wrapping every node with
// the shared stage-tracking/timing behavior.
func NewGraph(deps *Deps, tracker *StageTracker) *Graph {
	return &Graph{
		classify: withTiming(tracker, &Classifier{Deps: deps}),
		plan:     withTiming(tracker, &Planner{Deps: deps}),
		execute:  withTiming(tracker, &Executor{Deps: deps}),
		audit:    withTiming(tracker, &Auditor{Deps: deps}),
		deliver:  withTiming(tracker, &Deliverer{Deps: deps}),
		deps:     deps,
	}
}

// Run drives state through the graph to completion, returning only once
// Deliver has run (either because the verdict passed or the retry
// budget was exhausted).
func (g *Graph) Run(ctx context.Context, state *PipelineState) error {
	if err := g.classify.Run(ctx, state); err != nil {
		return err
	}

	for {
		if err := g.plan.Run(ctx, state); err != nil {
			return err
		}
		if err := g.execute.Run(ctx, state); err != nil {
			return err
		}
		if err := g.audit.Run(ctx, state); err != nil {
			return err
		}

		if g.shouldDeliver(state) {
			break
		}
	}

	return g.deliver.Run(ctx, state)
}

// shouldDeliver implements the conditional audit→plan edge: proceed to
// deliver once the verdict passes, or once the retry budget is spent —
// otherwise loop back to plan.
func (g *Graph) shouldDeliver(state *PipelineState) bool {
	return state.Verdict == VerdictPass || state.RetryCount >= g.deps.maxRetries()
}
