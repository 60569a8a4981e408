package coordinator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskrunner/gateway/internal/pipeline"
	"github.com/taskrunner/gateway/internal/store"
)

// fakeTaskStore is an in-memory stand-in for store.TaskStore, supporting
// only the lookups ReadSidecar needs.
type fakeTaskStore struct {
	tasks map[string]*store.Task
}

func (f *fakeTaskStore) Create(task *store.Task) error {
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskStore) Update(task *store.Task) error {
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTaskStore) Get(id string) (*store.Task, bool) {
	t, ok := f.tasks[id]
	return t, ok
}

func (f *fakeTaskStore) GetByPrefix(prefix string) (*store.Task, bool) {
	for _, t := range f.tasks {
		if len(t.ID) >= len(prefix) && t.ID[:len(prefix)] == prefix {
			return t, true
		}
	}
	return nil, false
}

func (f *fakeTaskStore) ListRecent(userID string, limit int) []*store.Task {
	return nil
}

func (f *fakeTaskStore) RewriteRunningToCrashed() (int, error) {
	return 0, nil
}

func (f *fakeTaskStore) Prune(olderThan time.Duration) (int, error) {
	return 0, nil
}

func TestReadSidecar_RejectsShortPrefix(t *testing.T) {
	c := &Coordinator{stores: &store.Stores{Tasks: &fakeTaskStore{tasks: map[string]*store.Task{}}}}
	if _, err := c.ReadSidecar("short"); err == nil {
		t.Errorf("expected an error for a prefix shorter than 8 characters")
	}
}

func TestReadSidecar_UnknownPrefixReturnsErrTaskNotFound(t *testing.T) {
	c := &Coordinator{stores: &store.Stores{Tasks: &fakeTaskStore{tasks: map[string]*store.Task{}}}}
	_, err := c.ReadSidecar("deadbeef00")
	if err != ErrTaskNotFound {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestReadSidecar_ReadsAndDecodesSidecarFile(t *testing.T) {
	dir := t.TempDir()
	tasks := &fakeTaskStore{tasks: map[string]*store.Task{
		"task-12345678": {ID: "task-12345678", UserID: "alice", CreatedAt: time.Now()},
	}}
	c := &Coordinator{
		stores: &store.Stores{Tasks: tasks},
		deps:   &pipeline.Deps{OutputsDir: dir},
	}

	sidecar := pipeline.DebugSidecar{TaskID: "task-12345678"}
	data, err := json.Marshal(sidecar)
	if err != nil {
		t.Fatalf("json.Marshal() failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "task-12345678.debug.json"), data, 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	got, err := c.ReadSidecar("task-1234")
	if err != nil {
		t.Fatalf("ReadSidecar() failed: %v", err)
	}
	if got.TaskID != "task-12345678" {
		t.Errorf("TaskID = %q, want task-12345678", got.TaskID)
	}
}

func TestReadSidecar_MissingFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	tasks := &fakeTaskStore{tasks: map[string]*store.Task{
		"task-abcdefgh": {ID: "task-abcdefgh", UserID: "alice", CreatedAt: time.Now()},
	}}
	c := &Coordinator{
		stores: &store.Stores{Tasks: tasks},
		deps:   &pipeline.Deps{OutputsDir: dir},
	}

	if _, err := c.ReadSidecar("task-abcd"); err == nil {
		t.Errorf("expected an error when the sidecar file doesn't exist on disk")
	}
}
