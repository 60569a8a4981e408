package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/taskrunner/gateway/internal/providers"
)

// classifyFallbackOrder is the fixed keyword-scan order used when the
// slow-path model response can't be parsed as JSON — specific types are
// checked before the catch-all "code" so an ambiguous message never
// silently lands on the narrowest category.
var classifyFallbackOrder = []struct {
	t        TaskType
	keywords []string
}{
	{TaskUIDesign, []string{"design", "mockup", "wireframe", "figma", "ui layout"}},
	{TaskFrontend, []string{"react", "frontend", "css", "html", "component", "webpage"}},
	{TaskData, []string{"csv", "dataframe", "analyze data", "spreadsheet", "dataset", "sql query"}},
	{TaskFile, []string{"this file", "attached file", "uploaded file", "pdf", "parse the file"}},
	{TaskAutomation, []string{"schedule", "automate", "cron", "every day", "recurring"}},
	{TaskCode, nil}, // catch-all
}

type classifyVerdict struct {
	Type TaskType `json:"type"`
}

// Classifier is the pipeline's first node: it assigns one of the seven
// task types, taking a fast path through the project registry before
// ever spending a model call.
type Classifier struct {
	Deps *Deps
}

func (c *Classifier) Name() Stage { return StageClassify }

func (c *Classifier) Run(ctx context.Context, state *PipelineState) error {
	if c.Deps.Registry != nil {
		if proj, ok := c.Deps.Registry.MatchTrigger(state.Message); ok {
			projCopy := proj
			state.Type = TaskProject
			state.Project = &projCopy
			return nil
		}
	}

	t, err := c.classifySlow(ctx, state)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	// The slow path may still say "project" on a vague resemblance with
	// no registered trigger actually present; demoting to "code" avoids
	// a guaranteed retry loop later when the Executor has no project
	// config to build a script from.
	if t == TaskProject && state.Project == nil {
		t = TaskCode
	}
	state.Type = t
	return nil
}

func (c *Classifier) classifySlow(ctx context.Context, state *PipelineState) (TaskType, error) {
	summary := ""
	if c.Deps.Registry != nil {
		summary = c.Deps.Registry.Summary()
	}

	system := "You classify a user's task request into exactly one type: " +
		"project, frontend, ui_design, automation, data, file, code. " +
		"Registered projects:\n" + summary +
		"\nRespond with JSON only: {\"type\": \"<one of the above>\"}."

	resp, err := c.Deps.Gateway.Call(ctx, providers.PurposeClassify, providers.ComplexityLow,
		system, state.Message, 200, false)
	if err != nil {
		return "", err
	}

	var v classifyVerdict
	if jsonErr := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &v); jsonErr == nil && v.Type != "" {
		return v.Type, nil
	}

	return keywordFallback(state.Message), nil
}

// extractJSONObject returns the first balanced-brace JSON object found
// in s, or s itself unchanged if none is found — the model sometimes
// wraps its answer in prose or a markdown fence.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

func keywordFallback(message string) TaskType {
	lower := strings.ToLower(message)
	for _, entry := range classifyFallbackOrder {
		if entry.keywords == nil {
			return entry.t
		}
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.t
			}
		}
	}
	return TaskCode
}
