package sandbox

import (
	"context"
	"testing"
)

func TestParseMissingImport_PythonModuleNotFoundError(t *testing.T) {
	pkg, eco, ok := ParseMissingImport("ModuleNotFoundError: No module named 'yaml'")
	if !ok {
		t.Fatalf("expected a match")
	}
	if pkg != "pyyaml" || eco != "pip" {
		t.Errorf("pkg=%q eco=%q, want pyyaml/pip (alias-resolved)", pkg, eco)
	}
}

func TestParseMissingImport_NodeCannotFindModule(t *testing.T) {
	pkg, eco, ok := ParseMissingImport("Error: Cannot find module 'lodash'")
	if !ok || pkg != "lodash" || eco != "npm" {
		t.Errorf("pkg=%q eco=%q ok=%v, want lodash/npm/true", pkg, eco, ok)
	}
}

func TestParseMissingImport_GoPackageNotInGOROOT(t *testing.T) {
	pkg, eco, ok := ParseMissingImport("package github.com/foo/bar is not in GOROOT")
	if !ok || pkg != "github.com/foo/bar" || eco != "go" {
		t.Errorf("pkg=%q eco=%q ok=%v", pkg, eco, ok)
	}
}

func TestParseMissingImport_NoRecognizedPatternReturnsFalse(t *testing.T) {
	if _, _, ok := ParseMissingImport("some unrelated stack trace"); ok {
		t.Errorf("expected no match for unrecognized stderr")
	}
}

func TestInstallCommand_BuildsPerEcosystem(t *testing.T) {
	cases := map[string]string{
		"pip": "pip install --quiet 'yaml'",
		"npm": "npm install --silent 'lodash'",
		"go":  "go get 'github.com/foo/bar'",
	}
	pkgs := map[string]string{"pip": "yaml", "npm": "lodash", "go": "github.com/foo/bar"}
	for eco, want := range cases {
		if got := installCommand(eco, pkgs[eco]); got != want {
			t.Errorf("installCommand(%s) = %q, want %q", eco, got, want)
		}
	}
}

func TestInstallCommand_UnknownEcosystemReturnsEmpty(t *testing.T) {
	if got := installCommand("cargo", "serde"); got != "" {
		t.Errorf("installCommand(cargo) = %q, want empty", got)
	}
}

// fakeBackend scripts a fixed sequence of ExecResults, one per call to run.
type fakeBackend struct {
	results []*ExecResult
	calls   []string
	i       int
}

func (f *fakeBackend) run(ctx context.Context, req ExecRequest, onLine func(string, string)) (*ExecResult, error) {
	f.calls = append(f.calls, req.Command)
	if f.i >= len(f.results) {
		return f.results[len(f.results)-1], nil
	}
	r := f.results[f.i]
	f.i++
	return r, nil
}

func TestRunWithAutoInstall_SucceedsOnFirstRun(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{{ExitCode: 0}}}
	a := NewAutoInstaller(backend, 2, 2)

	result, err := a.RunWithAutoInstall(context.Background(), ExecRequest{Command: "run.sh"}, false, nil)
	if err != nil {
		t.Fatalf("RunWithAutoInstall() failed: %v", err)
	}
	if result.ExitCode != 0 || len(backend.calls) != 1 {
		t.Errorf("expected a single run with no install retry, got %d calls", len(backend.calls))
	}
}

func TestRunWithAutoInstall_InstallsMissingPackageThenRetries(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{
		{ExitCode: 1, Stderr: "ModuleNotFoundError: No module named 'requests'"},
		{ExitCode: 0},
	}}
	a := NewAutoInstaller(backend, 2, 2)

	result, err := a.RunWithAutoInstall(context.Background(), ExecRequest{Command: "run.py"}, false, nil)
	if err != nil {
		t.Fatalf("RunWithAutoInstall() failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0 after the auto-install retry", result.ExitCode)
	}
	if len(backend.calls) != 3 {
		t.Fatalf("calls = %v, want 3 (initial run, install, retry)", backend.calls)
	}
	if backend.calls[1] != "pip install --quiet 'requests'" {
		t.Errorf("install call = %q, want the pip install command", backend.calls[1])
	}
}

func TestRunWithAutoInstall_GivesUpAfterCapExhausted(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{
		{ExitCode: 1, Stderr: "ModuleNotFoundError: No module named 'a'"},
		{ExitCode: 1, Stderr: "ModuleNotFoundError: No module named 'b'"},
		{ExitCode: 1, Stderr: "ModuleNotFoundError: No module named 'c'"},
	}}
	a := NewAutoInstaller(backend, 1, 5)

	result, err := a.RunWithAutoInstall(context.Background(), ExecRequest{Command: "run.py"}, false, nil)
	if err != nil {
		t.Fatalf("RunWithAutoInstall() failed: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 (still failing after the retry cap)", result.ExitCode)
	}
}

func TestRunWithAutoInstall_UnrecognizedFailureReturnsImmediately(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{{ExitCode: 1, Stderr: "segmentation fault"}}}
	a := NewAutoInstaller(backend, 3, 3)

	result, err := a.RunWithAutoInstall(context.Background(), ExecRequest{Command: "run.py"}, false, nil)
	if err != nil {
		t.Fatalf("RunWithAutoInstall() failed: %v", err)
	}
	if result.ExitCode != 1 || len(backend.calls) != 1 {
		t.Errorf("expected a single call with no retry for an unrecognized failure, got %d calls", len(backend.calls))
	}
}
