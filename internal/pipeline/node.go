package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/taskrunner/gateway/internal/tracing"
)

// Node is the "state in, partial state out" contract every pipeline
// stage implements: a pure function that mutates state in place (the
// teacher's nodes return a full object; this module threads one struct
// through the graph since Go has no partial-update dict idiom that
// reads better than a mutation).
type Node interface {
	Name() Stage
	Run(ctx context.Context, state *PipelineState) error
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc struct {
	StageName Stage
	Fn        func(ctx context.Context, state *PipelineState) error
}

func (f NodeFunc) Name() Stage { return f.StageName }
func (f NodeFunc) Run(ctx context.Context, state *PipelineState) error {
	return f.Fn(ctx, state)
}

// StageTracker publishes the current stage for every in-flight task,
// read by the coordinator's status-poll loop: a global, mutex-protected
// map of task id to stage name.
type StageTracker struct {
	mu     sync.Mutex
	stages map[string]Stage
}

func NewStageTracker() *StageTracker {
	return &StageTracker{stages: make(map[string]Stage)}
}

func (t *StageTracker) Set(taskID string, stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages[taskID] = stage
}

func (t *StageTracker) Get(taskID string) (Stage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stages[taskID]
	return s, ok
}

func (t *StageTracker) Clear(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stages, taskID)
}

// withTiming wraps a Node so every invocation updates the stage tracker
// before running and appends a StageTiming after, regardless of which
// concrete node is wrapped — the one place this bookkeeping happens.
func withTiming(tracker *StageTracker, node Node) Node {
	return NodeFunc{
		StageName: node.Name(),
		Fn: func(ctx context.Context, state *PipelineState) error {
			tracker.Set(state.TaskID, node.Name())
			state.CurrentStage = node.Name()

			ctx, span := tracing.StartStageSpan(ctx, state.TaskID, string(node.Name()))
			start := time.Now()
			err := node.Run(ctx, state)
			state.RecordTiming(node.Name(), time.Since(start))
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
			return err
		},
	}
}
