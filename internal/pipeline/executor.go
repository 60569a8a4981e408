package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskrunner/gateway/internal/providers"
	"github.com/taskrunner/gateway/internal/sandbox"
)

// hardTimeoutCap bounds the estimated per-execution timeout regardless
// of task type or input size.
const hardTimeoutCap = 10 * time.Minute

// baseTimeoutByType seeds the timeout estimate before any size scaling.
var baseTimeoutByType = map[TaskType]time.Duration{
	TaskData:       90 * time.Second,
	TaskAutomation: 60 * time.Second,
	TaskFile:       60 * time.Second,
}

// interpreterByExt picks the command used to run a generated script,
// inferred from the first line's shebang or a fixed default.
var interpreterByExt = map[string]string{
	".py": "python3",
	".js": "node",
	".rb": "ruby",
	".sh": "sh",
}

// Executor is the pipeline's third node: it either composes a shell
// script strictly from a registered project's commands, or generates
// and runs free-form code, in both cases through the sandbox's guarded
// execution and auto-install retry path.
type Executor struct {
	Deps *Deps
}

func (e *Executor) Name() Stage { return StageExecute }

func (e *Executor) Run(ctx context.Context, state *PipelineState) error {
	workDir, err := e.prepareWorkspace(state)
	if err != nil {
		return fmt.Errorf("execute: prepare workspace: %w", err)
	}
	state.WorkingDir = workDir

	var result *sandbox.ExecResult
	if state.Type == TaskProject && state.Project != nil {
		result, err = e.runProject(ctx, state)
	} else {
		result, err = e.runFreeform(ctx, state)
	}
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	state.Result = &ExecutionResult{
		Success:       result.ExitCode == 0 && !result.TimedOut,
		ExitCode:      result.ExitCode,
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		Traceback:     extractTraceback(result.Stderr),
		Artifacts:     result.Artifacts,
		TimedOut:      result.TimedOut,
		Tier3Matches:  result.Tier3Matches,
	}
	state.ArtifactPaths = result.Artifacts
	return nil
}

func (e *Executor) prepareWorkspace(state *PipelineState) (string, error) {
	if state.Type == TaskProject && state.Project != nil {
		return state.Project.Path, nil
	}
	dir := filepath.Join(e.Deps.OutputsDir, state.TaskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (e *Executor) runProject(ctx context.Context, state *PipelineState) (*sandbox.ExecResult, error) {
	proj := state.Project

	if state.RetryCount == 0 {
		if _, err := e.bootstrapProject(ctx, state); err != nil {
			return nil, fmt.Errorf("bootstrap project: %w", err)
		}
	}

	if err := e.extractParams(ctx, state); err != nil {
		return nil, fmt.Errorf("extract params: %w", err)
	}

	system := "Compose a strict shell script using ONLY the following registered commands, " +
		"substituting any {placeholder} tokens with the given parameter values. " +
		"Do not invent commands outside this list."
	var cmdList strings.Builder
	for name, cmd := range proj.Commands {
		cmdList.WriteString(fmt.Sprintf("- %s: %s\n", name, cmd))
	}
	prompt := fmt.Sprintf("Commands:\n%s\nParameters:\n%s\nUser request: %s",
		cmdList.String(), formatParams(state.Params), state.Message)

	resp, err := e.Deps.Gateway.Call(ctx, providers.PurposeCodeGen, providers.ComplexityHigh,
		system, prompt, 2000, false)
	if err != nil {
		return nil, err
	}

	script := stripMarkdownFences(resp.Content)
	script = substituteParams(script, state.Params)
	state.ShellScript = script

	timeout := time.Duration(proj.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	env := map[string]string{}
	if proj.IsolatedEnvPath != "" {
		env["VIRTUAL_ENV"] = proj.IsolatedEnvPath
		env["PATH"] = filepath.Join(proj.IsolatedEnvPath, "bin") + ":" + os.Getenv("PATH")
	}

	return e.Deps.Sandbox.Exec(ctx, sandbox.ExecRequest{
		Command:      script,
		TaskID:       state.TaskID,
		WorkspaceDir: proj.Path,
		Timeout:      capTimeout(timeout),
		Env:          env,
		IsProject:    true,
	})
}

// projectManifests maps a manifest filename to the install command run
// against it, checked in order; the first one present wins.
var projectManifests = []struct {
	file    string
	install string
}{
	{"requirements.txt", "pip install -r requirements.txt --quiet"},
	{"package.json", "npm install --silent"},
	{"go.mod", "go mod download"},
	{"Gemfile", "bundle install --quiet"},
}

// bootstrapProject installs a project's dependencies once per task,
// on the first attempt only — re-running it on every retry would waste
// the retry budget on an already-satisfied install.
func (e *Executor) bootstrapProject(ctx context.Context, state *PipelineState) (*sandbox.ExecResult, error) {
	proj := state.Project
	for _, m := range projectManifests {
		if _, err := os.Stat(filepath.Join(proj.Path, m.file)); err != nil {
			continue
		}
		return e.Deps.Sandbox.Exec(ctx, sandbox.ExecRequest{
			Command:      m.install,
			TaskID:       state.TaskID + "-bootstrap",
			WorkspaceDir: proj.Path,
			Timeout:      3 * time.Minute,
			IsProject:    true,
		})
	}
	return nil, nil
}

func (e *Executor) runFreeform(ctx context.Context, state *PipelineState) (*sandbox.ExecResult, error) {
	code := state.Code
	if code == "" {
		code = state.Plan
	}

	ext := guessExtension(code)
	fileName := fmt.Sprintf("script_%s%s", uuid.NewString()[:8], ext)
	fullPath := filepath.Join(state.WorkingDir, fileName)
	if err := os.WriteFile(fullPath, []byte(code), 0o644); err != nil {
		return nil, err
	}

	interpreter := interpreterByExt[ext]
	if interpreter == "" {
		interpreter = "sh"
	}
	command := fmt.Sprintf("%s %s", interpreter, fileName)

	timeout := estimateTimeout(state.Type, len(state.Files))

	return e.Deps.Sandbox.Exec(ctx, sandbox.ExecRequest{
		Command:      command,
		Code:         code,
		TaskID:       state.TaskID,
		WorkspaceDir: state.WorkingDir,
		Timeout:      timeout,
		IsProject:    false,
	})
}

// extractParams runs a small structured sub-call to pull {placeholder}
// values for the project's commands out of the user's message.
func (e *Executor) extractParams(ctx context.Context, state *PipelineState) error {
	placeholders := collectPlaceholders(state.Project.Commands)
	if len(placeholders) == 0 {
		return nil
	}

	system := "Extract values for the following named parameters from the user's message. " +
		"Respond with a JSON object mapping parameter name to string value only; omit any parameter not present."
	prompt := fmt.Sprintf("Parameters: %s\nMessage: %s", strings.Join(placeholders, ", "), state.Message)

	resp, err := e.Deps.Gateway.Call(ctx, providers.PurposePlan, providers.ComplexityLow, system, prompt, 500, false)
	if err != nil {
		return err
	}

	cleaned := stripMarkdownFences(resp.Content)
	var params map[string]string
	if err := json.Unmarshal([]byte(extractJSONObject(cleaned)), &params); err != nil {
		return nil // no params extracted is not fatal; the script may not need any
	}
	for k, v := range params {
		state.Params[k] = v
	}
	return nil
}

func collectPlaceholders(commands map[string]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, cmd := range commands {
		start := 0
		for {
			open := strings.IndexByte(cmd[start:], '{')
			if open < 0 {
				break
			}
			open += start
			close := strings.IndexByte(cmd[open:], '}')
			if close < 0 {
				break
			}
			close += open
			name := cmd[open+1 : close]
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
			start = close + 1
		}
	}
	return out
}

func formatParams(params map[string]string) string {
	var b strings.Builder
	for k, v := range params {
		b.WriteString(k + "=" + v + "\n")
	}
	return b.String()
}

// substituteParams replaces every {name} token with its shell-quoted
// value so a parameter containing spaces or shell metacharacters can't
// break out of its substitution site.
func substituteParams(script string, params map[string]string) string {
	for k, v := range params {
		script = strings.ReplaceAll(script, "{"+k+"}", shellQuoteParam(v))
	}
	return script
}

func shellQuoteParam(v string) string {
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func guessExtension(code string) string {
	first := code
	if idx := strings.IndexByte(code, '\n'); idx >= 0 {
		first = code[:idx]
	}
	switch {
	case strings.Contains(first, "python"):
		return ".py"
	case strings.Contains(first, "node"):
		return ".js"
	case strings.Contains(first, "ruby"):
		return ".rb"
	case strings.HasPrefix(strings.TrimSpace(code), "def ") || strings.Contains(code, "import "):
		return ".py"
	case strings.Contains(code, "function ") || strings.Contains(code, "const ") || strings.Contains(code, "require("):
		return ".js"
	default:
		return ".sh"
	}
}

// estimateTimeout picks a starting estimate from the task type, then
// scales up slightly for every attached file, clamped to hardTimeoutCap.
func estimateTimeout(t TaskType, fileCount int) time.Duration {
	base, ok := baseTimeoutByType[t]
	if !ok {
		base = 45 * time.Second
	}
	estimate := base + time.Duration(fileCount)*15*time.Second
	return capTimeout(estimate)
}

func capTimeout(d time.Duration) time.Duration {
	if d > hardTimeoutCap {
		return hardTimeoutCap
	}
	return d
}

// tracebackMarker is the last occurrence searched for when extracting a
// traceback block, so a script that prints multiple tracebacks surfaces
// only the final (most relevant) one to the Planner's retry prompt.
const tracebackMarker = "Traceback"

func extractTraceback(stderr string) string {
	idx := strings.LastIndex(stderr, tracebackMarker)
	if idx < 0 {
		return ""
	}
	return stderr[idx:]
}
