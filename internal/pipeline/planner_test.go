package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/taskrunner/gateway/internal/providers"
	"github.com/taskrunner/gateway/internal/store"
)

func TestStripMarkdownFences_RemovesLanguageTaggedFence(t *testing.T) {
	in := "```python\nprint('hi')\n```"
	if got := stripMarkdownFences(in); got != "print('hi')" {
		t.Errorf("stripMarkdownFences() = %q, want print('hi')", got)
	}
}

func TestStripMarkdownFences_NoFenceIsUnchanged(t *testing.T) {
	in := "print('hi')"
	if got := stripMarkdownFences(in); got != in {
		t.Errorf("stripMarkdownFences() = %q, want unchanged", got)
	}
}

func TestExecutionResult_TracebackHandlesNilReceiver(t *testing.T) {
	var r *ExecutionResult
	if got := r.traceback(); got != "" {
		t.Errorf("traceback() on nil = %q, want empty", got)
	}
}

func TestExecutionResult_TracebackReturnsField(t *testing.T) {
	r := &ExecutionResult{Traceback: "boom"}
	if got := r.traceback(); got != "boom" {
		t.Errorf("traceback() = %q, want boom", got)
	}
}

// fakeProjectMemoryStore is an in-memory stand-in for store.ProjectMemoryStore.
type fakeProjectMemoryStore struct {
	records []store.ProjectMemoryRecord
}

func (f *fakeProjectMemoryStore) Append(rec store.ProjectMemoryRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeProjectMemoryStore) Recent(project string, limit int) []store.ProjectMemoryRecord {
	var out []store.ProjectMemoryRecord
	for _, r := range f.records {
		if r.Project == project {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func TestPlanner_RecentLessons_FormatsOutcomeAndLesson(t *testing.T) {
	mem := &fakeProjectMemoryStore{records: []store.ProjectMemoryRecord{
		{Project: "blog", Outcome: "success", Lesson: "use make deploy"},
		{Project: "other", Outcome: "failure", Lesson: "irrelevant"},
	}}
	p := &Planner{Deps: &Deps{Stores: &store.Stores{ProjectMemory: mem}}}

	lessons := p.recentLessons("blog")
	if len(lessons) != 1 || lessons[0] != "[success] use make deploy" {
		t.Errorf("recentLessons() = %v, want a single formatted lesson", lessons)
	}
}

func TestPlanner_RecentLessons_NilStoreReturnsNil(t *testing.T) {
	p := &Planner{Deps: &Deps{}}
	if got := p.recentLessons("blog"); got != nil {
		t.Errorf("recentLessons() = %v, want nil with no store configured", got)
	}
}

func TestPlanner_RelevantProjectFiles_ReadsTopLevelFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}

	p := &Planner{Deps: &Deps{}}
	got := p.relevantProjectFiles(dir)
	if got == "" {
		t.Fatalf("expected non-empty file listing")
	}
}

func TestPlanner_RelevantProjectFiles_MissingDirReturnsEmpty(t *testing.T) {
	p := &Planner{Deps: &Deps{}}
	if got := p.relevantProjectFiles(filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Errorf("relevantProjectFiles() = %q, want empty for a missing directory", got)
	}
}

func TestPlanner_Run_PopulatesPlanAndStrippedCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stop_reason": "end_turn", "content": [{"type": "text", "text": "` +
			"```python\\nprint('hi')\\n```" + `"}], "usage": {}}`))
	}))
	defer srv.Close()

	remote := providers.NewRemoteProvider("test-key", "claude-sonnet", providers.WithRemoteBaseURL(srv.URL))
	router := providers.NewRouter(remote, nil, nil, 0.75)
	gw := providers.NewGateway(router, nil)

	p := &Planner{Deps: &Deps{Gateway: gw}}
	state := NewState("t1", "alice", "print hi", nil)
	state.Type = TaskCode

	if err := p.Run(context.Background(), state); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if state.Code != "print('hi')" {
		t.Errorf("Code = %q, want the fenced code stripped", state.Code)
	}
}
