package pipeline

import "testing"

func TestStageTracker_SetAndGet(t *testing.T) {
	tracker := NewStageTracker()
	tracker.Set("task-1", StageClassify)

	stage, ok := tracker.Get("task-1")
	if !ok {
		t.Fatalf("expected a stage to be recorded for task-1")
	}
	if stage != StageClassify {
		t.Errorf("stage = %v, want %v", stage, StageClassify)
	}
}

func TestStageTracker_GetUnknownTask(t *testing.T) {
	tracker := NewStageTracker()
	if _, ok := tracker.Get("missing"); ok {
		t.Errorf("expected no stage for an untracked task id")
	}
}

func TestStageTracker_Clear(t *testing.T) {
	tracker := NewStageTracker()
	tracker.Set("task-1", StagePlan)
	tracker.Clear("task-1")

	if _, ok := tracker.Get("task-1"); ok {
		t.Errorf("expected stage to be gone after Clear")
	}
}

func TestStageTracker_OverwritesOnSet(t *testing.T) {
	tracker := NewStageTracker()
	tracker.Set("task-1", StageClassify)
	tracker.Set("task-1", StageExecute)

	stage, _ := tracker.Get("task-1")
	if stage != StageExecute {
		t.Errorf("stage = %v, want %v after overwrite", stage, StageExecute)
	}
}
