// Package pipeline implements the fixed Classify→Plan→Execute→Audit→
// Deliver graph: five pure nodes over a shared PipelineState, wired by
// graph.go with one conditional back-edge from Audit to Plan bounded by
// MAX_RETRIES.
package pipeline

import (
	"time"

	"github.com/taskrunner/gateway/internal/projects"
)

// TaskType is the closed set of task categories the Classifier assigns.
type TaskType string

const (
	TaskProject   TaskType = "project"
	TaskFrontend  TaskType = "frontend"
	TaskUIDesign  TaskType = "ui_design"
	TaskAutomation TaskType = "automation"
	TaskData      TaskType = "data"
	TaskFile      TaskType = "file"
	TaskCode      TaskType = "code"
)

// Verdict is the Auditor's pass/fail judgment of an execution result.
type Verdict string

const (
	VerdictPass Verdict = "pass"
	VerdictFail Verdict = "fail"
	// VerdictUnset is the zero value: read by the graph's conditional
	// edge as "not pass", same as an explicit fail.
	VerdictUnset Verdict = ""
)

// Stage names the pipeline's current position, published for live status.
type Stage string

const (
	StageClassify Stage = "classify"
	StagePlan     Stage = "plan"
	StageExecute  Stage = "execute"
	StageAudit    Stage = "audit"
	StageDeliver  Stage = "deliver"
)

// StageTiming records one node's wall-clock duration for the debug
// sidecar and for a potential future metrics emission.
type StageTiming struct {
	Name       Stage
	DurationMs int64
}

// ExecutionResult is the Executor's output, consumed by Auditor and
// Deliverer.
type ExecutionResult struct {
	Success           bool
	ExitCode          int
	Stdout            string
	Stderr            string
	Traceback         string
	Artifacts         []string
	TimedOut          bool
	AutoInstalled     []string
	Tier3Matches      []string
}

// PipelineState is the single shared state object every node reads from
// and writes a partial update to. Nodes must only ever add fields, never
// remove fields another node depends on later in the graph.
type PipelineState struct {
	TaskID  string
	UserID  string
	Message string
	Files   []string

	Type           TaskType
	Project        *projects.Project
	ConversationCtx []ConversationTurn

	Plan string
	Code string
	// ShellScript is set instead of Code for the project execution
	// sub-path, where the Executor composes a script strictly from the
	// project's registered commands rather than generating free-form
	// code.
	ShellScript string
	Params      map[string]string

	WorkingDir string

	Result *ExecutionResult

	Verdict      Verdict
	AuditFeedback string
	RetryCount   int

	CurrentStage Stage
	StageTimings []StageTiming

	FinalResponse string
	ArtifactPaths []string
}

// ConversationTurn is one prior message injected into the Planner's
// prompt for continuity across a user's task history.
type ConversationTurn struct {
	Role string
	Text string
	At   time.Time
}

// NewState constructs the initial state for a freshly created task.
func NewState(taskID, userID, message string, files []string) *PipelineState {
	return &PipelineState{
		TaskID:  taskID,
		UserID:  userID,
		Message: message,
		Files:   files,
		Params:  map[string]string{},
	}
}

// RecordTiming appends a stage's duration to the state's timing list.
func (s *PipelineState) RecordTiming(stage Stage, d time.Duration) {
	s.StageTimings = append(s.StageTimings, StageTiming{Name: stage, DurationMs: d.Milliseconds()})
}
