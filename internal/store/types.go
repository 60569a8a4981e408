// Package store defines the persistence entities and interfaces used by
// the pipeline, coordinator, and model gateway, plus the
// concrete Postgres, SQLite, and file-backed implementations in its
// subpackages.
package store

import "time"

// TaskStatus is the lifecycle status of a Task. Status advances
// monotonically: pending -> running -> {done, failed, crashed, cancelled}.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskCrashed   TaskStatus = "crashed"
	TaskCancelled TaskStatus = "cancelled"
)

// Task is the persisted record of one pipeline run.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Message     string     `json:"message"`
	Files       []string   `json:"files,omitempty"`
	Status      TaskStatus `json:"status"`
	// Type is the classifier's task type, set once Classify has run;
	// empty for a task still pending classification.
	Type        string     `json:"type,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	InputTokens int        `json:"input_tokens,omitempty"`
	OutputTokens int       `json:"output_tokens,omitempty"`
}

// TaskStore persists Task records and supports the retention and
// crash-repair invariants.
type TaskStore interface {
	Create(t *Task) error
	Update(t *Task) error
	Get(id string) (*Task, bool)
	// GetByPrefix resolves a task ID from a prefix of at least 8 chars,
	// used by the `debug` command.
	GetByPrefix(prefix string) (*Task, bool)
	ListRecent(userID string, limit int) []*Task
	// RewriteRunningToCrashed is invoked once at startup: any task left
	// in `running`/`pending` status is rewritten to `crashed` so history
	// reflects reality.
	RewriteRunningToCrashed() (int, error)
	// Prune deletes completed task records older than the given age.
	Prune(olderThan time.Duration) (int, error)
}

// ConversationRole distinguishes the speaker of a conversation turn.
type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
)

// ConversationHistoryRecord is one turn in a per-user conversation ring
//.
type ConversationHistoryRecord struct {
	UserID    string           `json:"user_id"`
	Role      ConversationRole `json:"role"`
	Text      string           `json:"text"`
	Timestamp time.Time        `json:"timestamp"`
}

// ConversationStore persists a bounded per-user ring of recent turns.
type ConversationStore interface {
	Append(rec ConversationHistoryRecord) error
	// Recent returns up to limit most-recent records for userID, oldest first.
	Recent(userID string, limit int) []ConversationHistoryRecord
	Clear(userID string) error
	PruneOlderThan(age time.Duration) (int, error)
}

// ApiUsageRecord is one Gateway call's token accounting. The
// timestamp is stored as a numeric Unix epoch, never as a string, so that
// day/month boundary comparisons use the same numeric type as storage
//.
type ApiUsageRecord struct {
	EpochSeconds    int64  `json:"epoch_seconds"`
	Model           string `json:"model"`
	InputTokens     int    `json:"input_tokens"`
	OutputTokens    int    `json:"output_tokens"`
	ThinkingTokens  int    `json:"thinking_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// ApiUsageStore is an append-only ledger of model call spend.
type ApiUsageStore interface {
	Append(rec ApiUsageRecord) error
	// SumSince returns the summed input/output/thinking tokens and cost
	// for records with EpochSeconds >= sinceEpoch.
	SumSince(sinceEpoch int64) (inputTokens, outputTokens, thinkingTokens int, costUSD float64)
	// Breakdown groups SumSince-style totals per model, for the `cost`
	// command's per-model breakdown.
	Breakdown(sinceEpoch int64) map[string]float64
	PruneOlderThan(age time.Duration) (int, error)
}

// ProjectMemoryRecord is a one-line lesson learned from a completed
// project task, read by the Planner on subsequent tasks for
// the same project.
type ProjectMemoryRecord struct {
	Project   string    `json:"project"`
	Outcome   string    `json:"outcome"` // "success" or "failure"
	Lesson    string    `json:"lesson"`
	Timestamp time.Time `json:"timestamp"`
}

// ProjectMemoryStore persists lessons learned per project.
type ProjectMemoryStore interface {
	Append(rec ProjectMemoryRecord) error
	Recent(project string, limit int) []ProjectMemoryRecord
}

// ScheduledJob is the external scheduler's persisted trigger.
// The pipeline core only stores these; it never runs them — the
// recurring-job scheduler collaborator is out of scope.
type ScheduledJob struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Trigger    string    `json:"trigger"` // cron/interval expression
	Message    string    `json:"message"` // the pipeline entry-point prompt to replay
	NextRun    time.Time `json:"next_run"`
	CreatedAt  time.Time `json:"created_at"`
}

// SchedulerJobStore persists ScheduledJobs in a database file separate
// from the primary store, to avoid lock contention with it.
type SchedulerJobStore interface {
	Create(j *ScheduledJob) error
	Remove(idPrefix string) (bool, error)
	List(userID string) []*ScheduledJob
	GetByPrefix(idPrefix string) (*ScheduledJob, bool)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Tasks         TaskStore
	Conversation  ConversationStore
	ApiUsage      ApiUsageStore
	ProjectMemory ProjectMemoryStore
	SchedulerJobs SchedulerJobStore
}
