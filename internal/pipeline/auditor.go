package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskrunner/gateway/internal/providers"
)

// environmentErrorSignatures are infrastructure failures, not code
// failures: a retry would just burn the budget re-running the same
// broken environment. Deliberately conservative: do not add "Permission
// denied" or "Connection refused" here, both are frequently caused by
// fixable generated code.
var environmentErrorSignatures = []string{
	"signal: killed",
	"context deadline exceeded",
	"process group kill",
	"No space left on device",
	"Bad file descriptor",
	"Temporary failure in name resolution",
	"Name or service not known",
}

// auditCriteriaByType gives the Auditor a task-type-specific rubric to
// judge against, alongside the generic pass/fail contract.
var auditCriteriaByType = map[TaskType]string{
	TaskProject:    "The script must only invoke the project's registered commands and must not error.",
	TaskData:       "The analysis must actually process the described data and report a concrete result, not a placeholder.",
	TaskFile:       "The script must read the attached file(s) and produce output derived from their actual content.",
	TaskAutomation: "The script must be safe to run unattended on a schedule with no interactive prompts.",
}

type auditVerdict struct {
	Verdict  string `json:"verdict"`
	Feedback string `json:"feedback"`
}

// Auditor is the pipeline's fourth node. It first checks for an
// environment-error short-circuit, then otherwise always calls the
// remote high-capability model — cross-model audit never routes to the
// local model, regardless of budget pressure.
type Auditor struct {
	Deps *Deps
}

func (a *Auditor) Name() Stage { return StageAudit }

func (a *Auditor) Run(ctx context.Context, state *PipelineState) error {
	if isEnvironmentError(state.Result) {
		state.Verdict = VerdictFail
		state.AuditFeedback = "execution failed due to an infrastructure error, not the generated code"
		state.RetryCount = a.Deps.maxRetries()
		return nil
	}

	system := a.buildCriteria(state.Type)
	prompt := a.buildPrompt(state)

	resp, err := a.Deps.Gateway.Call(ctx, providers.PurposeAudit, providers.ComplexityHigh,
		system, prompt, 1500, false)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	verdict, feedback := parseVerdict(resp.Content)
	state.Verdict = verdict
	state.AuditFeedback = feedback

	if verdict != VerdictPass {
		state.RetryCount++
	}
	return nil
}

func (a *Auditor) buildCriteria(t TaskType) string {
	criteria := auditCriteriaByType[t]
	if criteria == "" {
		criteria = "The output must genuinely accomplish the user's request."
	}
	return "You are auditing a completed task. Judge strictly against this criterion: " + criteria +
		" Respond with JSON only: {\"verdict\": \"pass\"|\"fail\", \"feedback\": \"<one line, empty if pass>\"}."
}

func (a *Auditor) buildPrompt(state *PipelineState) string {
	var b strings.Builder
	b.WriteString("Task: " + state.Message + "\n\n")
	b.WriteString("Plan:\n" + state.Plan + "\n\n")
	b.WriteString("Code run:\n" + state.Code + "\n\n")
	if state.Result != nil {
		b.WriteString(fmt.Sprintf("Exit code: %d\nStdout (truncated): %s\nStderr (truncated): %s\n",
			state.Result.ExitCode, truncate(state.Result.Stdout, 2000), truncate(state.Result.Stderr, 1000)))
	}
	return b.String()
}

func isEnvironmentError(r *ExecutionResult) bool {
	if r == nil {
		return false
	}
	if r.TimedOut {
		return true
	}
	haystack := r.Stderr + " " + r.Stdout
	for _, sig := range environmentErrorSignatures {
		if strings.Contains(haystack, sig) {
			return true
		}
	}
	return false
}

// parseVerdict parses the model's JSON verdict, falling back to
// balanced-brace extraction and then a keyword search. A verdict it
// cannot recognize at all defaults to fail, never pass.
func parseVerdict(content string) (Verdict, string) {
	var v auditVerdict
	if err := json.Unmarshal([]byte(content), &v); err == nil && v.Verdict != "" {
		return normalizeVerdict(v.Verdict), v.Feedback
	}

	extracted := extractJSONObject(content)
	if err := json.Unmarshal([]byte(extracted), &v); err == nil && v.Verdict != "" {
		return normalizeVerdict(v.Verdict), v.Feedback
	}

	lower := strings.ToLower(content)
	if strings.Contains(lower, "\"pass\"") || strings.Contains(lower, "verdict: pass") {
		return VerdictPass, ""
	}
	return VerdictFail, truncate(content, 300)
}

// normalizeVerdict maps any value other than the literal "pass" to
// fail, including unexpected strings like "partial".
func normalizeVerdict(v string) Verdict {
	if strings.EqualFold(strings.TrimSpace(v), string(VerdictPass)) {
		return VerdictPass
	}
	return VerdictFail
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
