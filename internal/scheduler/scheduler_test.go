package scheduler

import (
	"testing"

	"github.com/taskrunner/gateway/internal/store"
)

// fakeJobStore is an in-memory stand-in for store.SchedulerJobStore.
type fakeJobStore struct {
	jobs []*store.ScheduledJob
}

func (f *fakeJobStore) Create(j *store.ScheduledJob) error {
	f.jobs = append(f.jobs, j)
	return nil
}

func (f *fakeJobStore) Remove(idPrefix string) (bool, error) {
	for i, j := range f.jobs {
		if len(j.ID) >= len(idPrefix) && j.ID[:len(idPrefix)] == idPrefix {
			f.jobs = append(f.jobs[:i], f.jobs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobStore) List(userID string) []*store.ScheduledJob {
	var out []*store.ScheduledJob
	for _, j := range f.jobs {
		if j.UserID == userID {
			out = append(out, j)
		}
	}
	return out
}

func (f *fakeJobStore) GetByPrefix(idPrefix string) (*store.ScheduledJob, bool) {
	for _, j := range f.jobs {
		if len(j.ID) >= len(idPrefix) && j.ID[:len(idPrefix)] == idPrefix {
			return j, true
		}
	}
	return nil, false
}

func TestAdapter_CreateRejectsInvalidTrigger(t *testing.T) {
	a := New(&fakeJobStore{}, 3)
	_, err := a.Create("alice", "not a cron expression", "ping")
	if err == nil {
		t.Errorf("expected an error for an invalid cron expression")
	}
}

func TestAdapter_CreatePersistsValidJob(t *testing.T) {
	jobs := &fakeJobStore{}
	a := New(jobs, 3)

	job, err := a.Create("alice", "0 9 * * *", "run the daily report")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if job.UserID != "alice" || job.Message != "run the daily report" {
		t.Errorf("job = %+v, want matching UserID/Message", job)
	}
	if len(jobs.jobs) != 1 {
		t.Errorf("expected the job to be persisted, got %d jobs stored", len(jobs.jobs))
	}
}

func TestAdapter_ListFiltersByUser(t *testing.T) {
	jobs := &fakeJobStore{}
	a := New(jobs, 3)

	if _, err := a.Create("alice", "0 9 * * *", "a's job"); err != nil {
		t.Fatalf("Create alice: %v", err)
	}
	if _, err := a.Create("bob", "0 10 * * *", "b's job"); err != nil {
		t.Fatalf("Create bob: %v", err)
	}

	got := a.List("alice")
	if len(got) != 1 || got[0].Message != "a's job" {
		t.Errorf("List(alice) = %+v, want only alice's job", got)
	}
}

func TestAdapter_RemoveByIDPrefix(t *testing.T) {
	jobs := &fakeJobStore{}
	a := New(jobs, 3)

	job, err := a.Create("alice", "0 9 * * *", "a job")
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	removed, err := a.Remove(job.ID[:8])
	if err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if !removed {
		t.Errorf("expected Remove() to report true for an existing job prefix")
	}
	if len(a.List("alice")) != 0 {
		t.Errorf("expected the job to be gone after Remove()")
	}
}

func TestAdapter_RemoveUnknownPrefix(t *testing.T) {
	a := New(&fakeJobStore{}, 3)
	removed, err := a.Remove("deadbeef")
	if err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if removed {
		t.Errorf("expected Remove() to report false for an unknown prefix")
	}
}

func TestAdapter_MaxRetries(t *testing.T) {
	a := New(&fakeJobStore{}, 5)
	if a.MaxRetries() != 5 {
		t.Errorf("MaxRetries() = %d, want 5", a.MaxRetries())
	}
}
