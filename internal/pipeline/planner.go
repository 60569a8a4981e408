package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/taskrunner/gateway/internal/providers"
)

// successSentinel is the fixed string the Planner instructs generated
// code to print on its own successful self-verification; the Auditor
// never depends on it directly (the model audit is the real gate), but
// it gives generated scripts a concrete, greppable thing to assert
// toward instead of silently exiting 0.
const successSentinel = "TASK_SELF_CHECK_OK"

// taskTypePrompts holds the seven task-type-specific system prompt
// openers the Planner selects between; each is appended with the shared
// capabilities block below.
var taskTypePrompts = map[TaskType]string{
	TaskProject:    "You write a shell script that accomplishes the user's request using only the registered project's named commands.",
	TaskFrontend:   "You write frontend code (HTML/CSS/JS or a small React component) that accomplishes the user's request.",
	TaskUIDesign:   "You produce a UI design artifact (markup, a static mockup, or a description with precise layout) for the user's request.",
	TaskAutomation: "You write a script that automates the user's described task, suitable for being scheduled to run unattended.",
	TaskData:       "You write a data-analysis script that loads, processes, and reports on the user's described data.",
	TaskFile:       "You write a script that reads and processes the user's attached file(s) to accomplish their request.",
	TaskCode:       "You write a general-purpose script or program that accomplishes the user's request.",
}

const capabilitiesBlock = `
You may:
- use internet access to fetch public data
- install runtime dependencies with the appropriate package manager
- call a local model for sub-tasks if one is available
- read and write files under the task's working directory
- run shell commands

End your output with a line exactly of the form:
ARTIFACTS: ["relative/path/one", "relative/path/two"]
(use an empty array if nothing should be delivered as a file)

Include a self-check near the end of your script that asserts your own
output is correct, and on success print the exact line:
` + successSentinel

// Planner is the pipeline's second node.
type Planner struct {
	Deps *Deps
}

func (p *Planner) Name() Stage { return StagePlan }

func (p *Planner) Run(ctx context.Context, state *PipelineState) error {
	system := p.buildSystemPrompt(state)
	prompt := p.buildUserPrompt(state)

	resp, err := p.Deps.Gateway.Call(ctx, providers.PurposePlan, providers.ComplexityLow,
		system, prompt, 4000, true)
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	state.Plan = resp.Content
	state.Code = stripMarkdownFences(resp.Content)
	return nil
}

func (p *Planner) buildSystemPrompt(state *PipelineState) string {
	var b strings.Builder
	b.WriteString(taskTypePrompts[state.Type])
	b.WriteString("\n")
	b.WriteString(capabilitiesBlock)

	if state.Type != TaskProject {
		if std := p.Deps.Standards; std != nil {
			if text := std.Text(); text != "" {
				b.WriteString("\n\nCoding standards excerpt:\n")
				b.WriteString(text)
			}
		}
	}

	if state.Type == TaskProject && state.Project != nil {
		b.WriteString(fmt.Sprintf("\n\nProject: %s\nPath: %s\nDescription: %s\nTimeout: %ds\n",
			state.Project.Name, state.Project.Path, state.Project.Description, state.Project.TimeoutSec))
		b.WriteString("Available commands:\n")
		for name, cmd := range state.Project.Commands {
			b.WriteString(fmt.Sprintf("- %s: %s\n", name, cmd))
		}

		if lessons := p.recentLessons(state.Project.Name); len(lessons) > 0 {
			b.WriteString("\nLessons learned from previous runs of this project:\n")
			for _, l := range lessons {
				b.WriteString("- " + l + "\n")
			}
		}

		if files := p.relevantProjectFiles(state.Project.Path); files != "" {
			b.WriteString("\nRelevant project files:\n")
			b.WriteString(files)
		}
	}

	if len(state.ConversationCtx) > 0 {
		b.WriteString("\n\nRecent conversation:\n")
		for _, turn := range state.ConversationCtx {
			b.WriteString(fmt.Sprintf("[%s] %s\n", turn.Role, turn.Text))
		}
	}

	if state.RetryCount > 0 {
		b.WriteString("\n\nThe previous attempt failed. Traceback:\n")
		b.WriteString(state.Result.traceback())
		b.WriteString("\n\nAuditor feedback:\n")
		b.WriteString(state.AuditFeedback)
		b.WriteString("\n\nRevise the plan to address the above.")
	}

	return b.String()
}

func (p *Planner) buildUserPrompt(state *PipelineState) string {
	var b strings.Builder
	b.WriteString(state.Message)
	if len(state.Files) > 0 {
		b.WriteString("\n\nAttached files:\n")
		for _, f := range state.Files {
			b.WriteString("- " + f + "\n")
		}
	}
	return b.String()
}

func (p *Planner) recentLessons(project string) []string {
	if p.Deps.Stores == nil || p.Deps.Stores.ProjectMemory == nil {
		return nil
	}
	records := p.Deps.Stores.ProjectMemory.Recent(project, 5)
	lessons := make([]string, 0, len(records))
	for _, r := range records {
		lessons = append(lessons, fmt.Sprintf("[%s] %s", r.Outcome, r.Lesson))
	}
	return lessons
}

// relevantProjectFiles lists a project's top-level source files, capped
// by FileInjectionCap characters total, for a modest-sized tree; large
// trees are skipped rather than flooding the prompt.
func (p *Planner) relevantProjectFiles(root string) string {
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) > 200 {
		return ""
	}

	capChars := p.Deps.FileInjectionCap
	if capChars <= 0 {
		capChars = 6000
	}

	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() || b.Len() >= capChars {
			continue
		}
		full := filepath.Join(root, e.Name())
		data, err := os.ReadFile(full)
		if err != nil {
			continue
		}
		perFile := data
		if len(perFile) > 1500 {
			perFile = perFile[:1500]
		}
		b.WriteString("--- " + e.Name() + " ---\n")
		b.Write(perFile)
		b.WriteString("\n")
	}
	return b.String()
}

// stripMarkdownFences removes a leading/trailing ``` fence (with an
// optional language tag) so generated output can be executed directly.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (r *ExecutionResult) traceback() string {
	if r == nil {
		return ""
	}
	return r.Traceback
}
