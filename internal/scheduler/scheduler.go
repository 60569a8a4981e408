// Package scheduler is a thin adapter in front of the external
// recurring-job collaborator: it uses only the pipeline entry point and
// a persistent store. It only validates trigger expressions and
// persists ScheduledJob rows; it never runs a job itself.
package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/taskrunner/gateway/internal/store"
)

// Adapter validates `schedule` command input and persists jobs to the
// scheduler's own store.
type Adapter struct {
	jobs       store.SchedulerJobStore
	maxRetries int
	expr       gronx.Gronx
}

func New(jobs store.SchedulerJobStore, maxRetries int) *Adapter {
	return &Adapter{jobs: jobs, maxRetries: maxRetries, expr: gronx.New()}
}

// Create validates trigger as a 5-field cron expression and persists a new
// ScheduledJob. nextRun is computed relative to now so the external
// scheduler collaborator can pick the row up without re-parsing the
// expression on its own first tick.
func (a *Adapter) Create(userID, trigger, message string) (*store.ScheduledJob, error) {
	if !a.expr.IsValid(trigger) {
		return nil, fmt.Errorf("scheduler: invalid trigger expression %q", trigger)
	}

	next, err := gronx.NextTick(trigger, false)
	if err != nil {
		return nil, fmt.Errorf("scheduler: compute next run: %w", err)
	}

	job := &store.ScheduledJob{
		ID:        uuid.NewString(),
		UserID:    userID,
		Trigger:   trigger,
		Message:   message,
		NextRun:   next,
		CreatedAt: time.Now(),
	}
	if err := a.jobs.Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

// List returns userID's scheduled jobs.
func (a *Adapter) List(userID string) []*store.ScheduledJob {
	return a.jobs.List(userID)
}

// Remove deletes the job whose id starts with idPrefix.
func (a *Adapter) Remove(idPrefix string) (bool, error) {
	return a.jobs.Remove(idPrefix)
}

// MaxRetries is the retry budget the external scheduler collaborator
// should apply to a single job dispatch before giving up on that tick.
func (a *Adapter) MaxRetries() int {
	return a.maxRetries
}
