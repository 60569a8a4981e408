package pipeline

import (
	"context"
	"errors"
	"testing"
)

func newStubGraph(t *testing.T, maxRetries int, planCalls, executeCalls, auditCalls *int, verdicts []Verdict) *Graph {
	t.Helper()
	verdictIdx := 0
	return &Graph{
		classify: NodeFunc{StageName: StageClassify, Fn: func(ctx context.Context, s *PipelineState) error {
			s.Type = TaskCode
			return nil
		}},
		plan: NodeFunc{StageName: StagePlan, Fn: func(ctx context.Context, s *PipelineState) error {
			*planCalls++
			return nil
		}},
		execute: NodeFunc{StageName: StageExecute, Fn: func(ctx context.Context, s *PipelineState) error {
			*executeCalls++
			return nil
		}},
		audit: NodeFunc{StageName: StageAudit, Fn: func(ctx context.Context, s *PipelineState) error {
			*auditCalls++
			if verdictIdx < len(verdicts) {
				s.Verdict = verdicts[verdictIdx]
			} else {
				s.Verdict = verdicts[len(verdicts)-1]
			}
			verdictIdx++
			if s.Verdict != VerdictPass {
				s.RetryCount++
			}
			return nil
		}},
		deliver: NodeFunc{StageName: StageDeliver, Fn: func(ctx context.Context, s *PipelineState) error {
			s.FinalResponse = "delivered"
			return nil
		}},
		deps: &Deps{PipelineMaxRetries: maxRetries},
	}
}

func TestGraph_Run_DeliversImmediatelyOnFirstPass(t *testing.T) {
	var plans, execs, audits int
	g := newStubGraph(t, 3, &plans, &execs, &audits, []Verdict{VerdictPass})

	state := NewState("t1", "alice", "do something", nil)
	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if plans != 1 || execs != 1 || audits != 1 {
		t.Errorf("plan/execute/audit calls = %d/%d/%d, want 1/1/1", plans, execs, audits)
	}
	if state.FinalResponse != "delivered" {
		t.Errorf("FinalResponse = %q, want delivered", state.FinalResponse)
	}
}

func TestGraph_Run_RetriesUntilPass(t *testing.T) {
	var plans, execs, audits int
	g := newStubGraph(t, 3, &plans, &execs, &audits, []Verdict{VerdictFail, VerdictFail, VerdictPass})

	state := NewState("t1", "alice", "do something", nil)
	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if audits != 3 {
		t.Errorf("audit calls = %d, want 3", audits)
	}
	if state.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", state.RetryCount)
	}
}

func TestGraph_Run_StopsAtMaxRetriesEvenOnFailure(t *testing.T) {
	var plans, execs, audits int
	g := newStubGraph(t, 2, &plans, &execs, &audits, []Verdict{VerdictFail, VerdictFail, VerdictFail})

	state := NewState("t1", "alice", "do something", nil)
	if err := g.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if state.RetryCount < 2 {
		t.Errorf("RetryCount = %d, want at least the configured max of 2", state.RetryCount)
	}
	if state.FinalResponse != "delivered" {
		t.Errorf("expected Deliver to still run once the retry budget is exhausted")
	}
}

func TestGraph_Run_ClassifyErrorAbortsImmediately(t *testing.T) {
	wantErr := errors.New("classify boom")
	g := &Graph{
		classify: NodeFunc{StageName: StageClassify, Fn: func(ctx context.Context, s *PipelineState) error { return wantErr }},
		deps:     &Deps{},
	}
	state := NewState("t1", "alice", "do something", nil)
	if err := g.Run(context.Background(), state); err != wantErr {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
