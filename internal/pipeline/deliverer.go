package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/taskrunner/gateway/internal/providers"
	"github.com/taskrunner/gateway/internal/store"
)

// followUpWindow is the longest gap between a task and the task that
// followed it for the pair to count toward the temporal-sequence
// suggestion mining below.
const followUpWindow = 30 * time.Minute

// followUpOccurrenceThreshold is how many times the same follow-up type
// must have occurred within the window before a suggestion is surfaced.
const followUpOccurrenceThreshold = 2

// DebugSidecar is the per-task JSON record written after every delivery
// and read back by the `debug` command.
type DebugSidecar struct {
	TaskID          string        `json:"task_id"`
	Message         string        `json:"message"`
	TaskType        TaskType      `json:"task_type"`
	Stages          []StageTiming `json:"stages"`
	TotalDurationMs int64         `json:"total_duration_ms"`
	Verdict         Verdict       `json:"verdict"`
	RetryCount      int           `json:"retry_count"`
}

// Deliverer is the pipeline's final node.
type Deliverer struct {
	Deps *Deps
}

func (d *Deliverer) Name() Stage { return StageDeliver }

func (d *Deliverer) Run(ctx context.Context, state *PipelineState) error {
	if state.Verdict != VerdictPass {
		state.ArtifactPaths = nil
	}

	message, err := d.composeMessage(ctx, state)
	if err != nil {
		message = fallbackMessage(state)
	}

	if suggestion := d.mineFollowUpSuggestion(state); suggestion != "" {
		message += "\n\n" + suggestion
	}
	state.FinalResponse = message

	if state.Type == TaskProject && state.Project != nil {
		d.recordProjectMemory(state)
	}

	d.writeSidecar(state)
	return nil
}

func (d *Deliverer) composeMessage(ctx context.Context, state *PipelineState) (string, error) {
	system := "Compose a short, plain-language message reporting the outcome of a task to the user. " +
		"Never claim success unless the verdict is pass. If failed, summarize the failure plainly from the auditor feedback."
	prompt := fmt.Sprintf("Task: %s\nVerdict: %s\nAuditor feedback: %s\nArtifacts: %s",
		state.Message, state.Verdict, state.AuditFeedback, strings.Join(state.ArtifactPaths, ", "))

	resp, err := d.Deps.Gateway.Call(ctx, providers.PurposePlan, providers.ComplexityLow, system, prompt, 400, false)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func fallbackMessage(state *PipelineState) string {
	if state.Verdict == VerdictPass {
		return "Task completed."
	}
	feedback := state.AuditFeedback
	if feedback == "" {
		feedback = "the task could not be completed successfully"
	}
	return "Task failed after " + itoa(state.RetryCount) + " attempt(s): " + truncate(feedback, 400)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func (d *Deliverer) recordProjectMemory(state *PipelineState) {
	if d.Deps.Stores == nil || d.Deps.Stores.ProjectMemory == nil {
		return
	}
	outcome := "failure"
	if state.Verdict == VerdictPass {
		outcome = "success"
	}
	lesson := truncate(state.AuditFeedback, 200)
	if lesson == "" {
		lesson = "completed without issue"
	}
	_ = d.Deps.Stores.ProjectMemory.Append(store.ProjectMemoryRecord{
		Project:   state.Project.Name,
		Outcome:   outcome,
		Lesson:    lesson,
		Timestamp: time.Now(),
	})
}

// mineFollowUpSuggestion looks for a pattern in the user's recent task
// history: the current task type has, within followUpWindow, been
// followed by the same other type at least followUpOccurrenceThreshold
// times, which suggests that type is worth proactively offering.
func (d *Deliverer) mineFollowUpSuggestion(state *PipelineState) string {
	if d.Deps.Stores == nil || d.Deps.Stores.Tasks == nil {
		return ""
	}
	recent := d.Deps.Stores.Tasks.ListRecent(state.UserID, 50)

	// recent is newest-first (ListRecent orders by created_at DESC), so
	// for adjacent entries recent[i+1] happened before recent[i]: that
	// makes recent[i+1] "cur" and recent[i] the type that followed it.
	counts := map[string]int{}
	for i := 0; i < len(recent)-1; i++ {
		next, cur := recent[i], recent[i+1]
		if cur.Type != string(state.Type) {
			continue
		}
		if next.CreatedAt.Sub(cur.CreatedAt) > followUpWindow {
			continue
		}
		counts[next.Type]++
	}
	for followType, c := range counts {
		if c >= followUpOccurrenceThreshold && followType != string(state.Type) {
			return "You often follow a " + string(state.Type) + " task with a " + followType + " one shortly after — let me know if you'd like to queue one up."
		}
	}
	return ""
}

func (d *Deliverer) writeSidecar(state *PipelineState) {
	var total int64
	for _, t := range state.StageTimings {
		total += t.DurationMs
	}

	sidecar := DebugSidecar{
		TaskID:          state.TaskID,
		Message:         sanitizeHomePath(truncate(state.Message, 300)),
		TaskType:        state.Type,
		Stages:          state.StageTimings,
		TotalDurationMs: total,
		Verdict:         state.Verdict,
		RetryCount:      state.RetryCount,
	}

	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(d.Deps.OutputsDir, state.TaskID+".debug.json")
	_ = os.WriteFile(path, data, 0o644)
}

// sanitizeHomePath strips the operator's absolute home directory prefix
// from a string before it is persisted to the debug sidecar.
func sanitizeHomePath(s string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return s
	}
	return strings.ReplaceAll(s, home, "~")
}
