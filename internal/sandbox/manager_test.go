package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGuard_Exec_RefusesTier1Command(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{{ExitCode: 0}}}
	g := NewGuard(backend, NewLiveOutputRegistry(100), 500, t.TempDir(), 2, 3)

	_, err := g.Exec(context.Background(), ExecRequest{Command: "rm -rf /", TaskID: "t1"})
	var refusal *RefusalError
	if !errors.As(err, &refusal) {
		t.Fatalf("err = %v, want a *RefusalError", err)
	}
	if len(backend.calls) != 0 {
		t.Errorf("expected the backend to never run a tier-1-refused command, got %d calls", len(backend.calls))
	}
}

func TestGuard_Exec_RefusesTier4Code(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{{ExitCode: 0}}}
	g := NewGuard(backend, NewLiveOutputRegistry(100), 500, t.TempDir(), 2, 3)

	_, err := g.Exec(context.Background(), ExecRequest{
		Command: "python3 run.py",
		Code:    "subprocess.run(cmd, shell=True)",
		TaskID:  "t1",
	})
	var refusal *RefusalError
	if !errors.As(err, &refusal) || !refusal.InCode {
		t.Fatalf("err = %v, want a *RefusalError with InCode=true", err)
	}
}

func TestGuard_Exec_RunsAllowedCommandAndDetectsArtifacts(t *testing.T) {
	dir := t.TempDir()
	backend := &fakeBackend{results: []*ExecResult{{ExitCode: 0, Stdout: "done"}}}
	g := NewGuard(backend, NewLiveOutputRegistry(100), 500, dir, 2, 3)

	if err := os.WriteFile(filepath.Join(dir, "output.txt"), []byte("result"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	result, err := g.Exec(context.Background(), ExecRequest{Command: "echo hi", TaskID: "t1", WorkspaceDir: dir})
	if err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
	if len(backend.calls) != 1 {
		t.Errorf("expected exactly one backend run for an allowed command, got %d", len(backend.calls))
	}
}

func TestGuard_Exec_RecordsTier3Matches(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{{ExitCode: 0}}}
	g := NewGuard(backend, NewLiveOutputRegistry(100), 500, t.TempDir(), 2, 3)

	result, err := g.Exec(context.Background(), ExecRequest{Command: "pip install requests", TaskID: "t1"})
	if err != nil {
		t.Fatalf("Exec() failed: %v", err)
	}
	if len(result.Tier3Matches) == 0 {
		t.Errorf("expected a tier-3 match to be recorded for a package install")
	}
}

func TestGuard_Exec_SkipsTier4WhenCodeScanDisabled(t *testing.T) {
	backend := &fakeBackend{results: []*ExecResult{{ExitCode: 0}}}
	g := NewGuardWithCodeScan(backend, NewLiveOutputRegistry(100), 500, t.TempDir(), 2, 3, false)

	result, err := g.Exec(context.Background(), ExecRequest{
		Command: "python3 run.py",
		Code:    "subprocess.run(cmd, shell=True)",
		TaskID:  "t1",
	})
	if err != nil {
		t.Fatalf("Exec() failed: %v, want the tier-4 scan skipped for a container backend", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.ExitCode)
	}
}

func TestGuard_LiveOutputs_ReturnsTheSameRegistry(t *testing.T) {
	registry := NewLiveOutputRegistry(100)
	g := NewGuard(&fakeBackend{}, registry, 500, t.TempDir(), 2, 3)
	if g.LiveOutputs() != registry {
		t.Errorf("LiveOutputs() did not return the registry passed to NewGuard")
	}
}
