// Package coordinator is the Task Coordinator: the entry point a chat
// front-end calls per user message. It enforces guards, creates the
// task record, runs the pipeline in a worker, streams status updates,
// and delivers the final result and artifacts.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskrunner/gateway/internal/bus"
	"github.com/taskrunner/gateway/internal/guard"
	"github.com/taskrunner/gateway/internal/pipeline"
	"github.com/taskrunner/gateway/internal/projects"
	"github.com/taskrunner/gateway/internal/sandbox"
	"github.com/taskrunner/gateway/internal/store"
	"github.com/taskrunner/gateway/pkg/protocol"
)

// ErrTaskNotFound is returned when a task id (or its prefix) doesn't
// resolve to a known task.
var ErrTaskNotFound = errors.New("coordinator: task not found")

// defaultArtifactMaxBytes bounds an outbound artifact when the config
// doesn't set one: artifactMedia skips anything larger rather than let
// a single oversized file crowd out the rest of a delivery.
const defaultArtifactMaxBytes = 20 * 1024 * 1024

// Coordinator is the single per-process entry point for submitting and
// tracking tasks.
type Coordinator struct {
	guard       *guard.Guard
	graph       *pipeline.Graph
	deps        *pipeline.Deps
	tracker     *pipeline.StageTracker
	liveOutputs *sandbox.LiveOutputRegistry
	stores      *store.Stores
	events      bus.EventPublisher

	pipelineTimeout  time.Duration
	statusPollPeriod time.Duration
	artifactMaxBytes int64

	mu           sync.Mutex
	consumedFiles map[string]bool // taskID -> whether its upload set was already claimed
	cancel       map[string]context.CancelFunc
}

// Config bundles the collaborators New needs.
type Config struct {
	Guard            *guard.Guard
	Graph            *pipeline.Graph
	Deps             *pipeline.Deps
	Tracker          *pipeline.StageTracker
	LiveOutputs      *sandbox.LiveOutputRegistry
	Stores           *store.Stores
	Events           bus.EventPublisher
	PipelineTimeout  time.Duration
	StatusPollPeriod time.Duration
	ArtifactMaxBytes int64
}

func New(cfg Config) *Coordinator {
	pollPeriod := cfg.StatusPollPeriod
	if pollPeriod <= 0 {
		pollPeriod = 3 * time.Second
	}
	timeout := cfg.PipelineTimeout
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	artifactMaxBytes := cfg.ArtifactMaxBytes
	if artifactMaxBytes <= 0 {
		artifactMaxBytes = defaultArtifactMaxBytes
	}
	return &Coordinator{
		guard:            cfg.Guard,
		graph:            cfg.Graph,
		deps:             cfg.Deps,
		tracker:          cfg.Tracker,
		liveOutputs:      cfg.LiveOutputs,
		stores:           cfg.Stores,
		events:           cfg.Events,
		pipelineTimeout:  timeout,
		statusPollPeriod: pollPeriod,
		artifactMaxBytes: artifactMaxBytes,
		consumedFiles:    make(map[string]bool),
		cancel:           make(map[string]context.CancelFunc),
	}
}

// artifactMedia turns artifact paths from a finished pipeline run into
// outbound media attachments, skipping anything empty or larger than
// artifactMaxBytes so one oversized file can't crowd out the rest of a
// delivery; a missing/unreadable file is skipped the same way.
func (c *Coordinator) artifactMedia(paths []string) []bus.MediaAttachment {
	var media []bus.MediaAttachment
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			slog.Warn("skipping artifact: stat failed", "path", p, "error", err)
			continue
		}
		if info.Size() == 0 {
			continue
		}
		if info.Size() > c.artifactMaxBytes {
			slog.Warn("skipping oversized artifact", "path", p, "size", info.Size(), "max", c.artifactMaxBytes)
			continue
		}
		media = append(media, bus.MediaAttachment{Path: p, Caption: filepath.Base(p)})
	}
	return media
}

// Submit runs the guards, creates a Task record, and launches the
// pipeline in its own goroutine, so the caller's event loop is never
// blocked.
func (c *Coordinator) Submit(ctx context.Context, msg bus.InboundMessage) (string, error) {
	if err := c.guard.Admit(msg.UserID); err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	task := &store.Task{
		ID:        taskID,
		UserID:    msg.UserID,
		Message:   msg.Content,
		Files:     msg.Files,
		Status:    store.TaskPending,
		CreatedAt: time.Now(),
	}
	if err := c.stores.Tasks.Create(task); err != nil {
		c.guard.Release()
		return "", fmt.Errorf("coordinator: create task: %w", err)
	}

	c.mu.Lock()
	c.consumedFiles[taskID] = false
	c.mu.Unlock()

	task.Status = store.TaskRunning
	_ = c.stores.Tasks.Update(task)

	runCtx, cancel := context.WithTimeout(context.Background(), c.pipelineTimeout)
	c.mu.Lock()
	c.cancel[taskID] = cancel
	c.mu.Unlock()

	go c.run(runCtx, cancel, taskID, msg)

	return taskID, nil
}

func (c *Coordinator) run(ctx context.Context, cancel context.CancelFunc, taskID string, msg bus.InboundMessage) {
	defer cancel()
	defer c.guard.Release()
	defer c.tracker.Clear(taskID)
	defer c.clearConsumedFiles(taskID)
	defer c.clearCancel(taskID)

	state := pipeline.NewState(taskID, msg.UserID, msg.Content, msg.Files)
	state.ConversationCtx = c.recentConversation(msg.UserID)

	stop := c.startStatusPoll(ctx, taskID, msg.ChatID)
	defer stop()

	err := c.graph.Run(ctx, state)

	task, ok := c.stores.Tasks.Get(taskID)
	if !ok {
		task = &store.Task{ID: taskID, UserID: msg.UserID, Message: msg.Content}
	}
	now := time.Now()
	task.CompletedAt = &now

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		task.Status = store.TaskFailed
		task.Error = "the task exceeded its overall time budget"
		slog.Error("pipeline timed out", "task_id", taskID, "error", err)
		c.events.Broadcast(bus.Event{Name: protocol.EventTaskFailed, TaskID: taskID,
			Payload: bus.OutboundMessage{ChatID: msg.ChatID, Content: SanitizeUserMessage(task.Error)}})
	case err != nil:
		task.Status = store.TaskFailed
		task.Error = SanitizeUserMessage(err.Error())
		slog.Error("pipeline run failed", "task_id", taskID, "error", err)
		c.events.Broadcast(bus.Event{Name: protocol.EventTaskFailed, TaskID: taskID,
			Payload: bus.OutboundMessage{ChatID: msg.ChatID, Content: task.Error}})
	default:
		task.Status = taskStatusFor(state.Verdict)
		task.Result = state.FinalResponse
		task.Type = string(state.Type)
		c.events.Broadcast(bus.Event{Name: protocol.EventTaskDone, TaskID: taskID, Payload: bus.OutboundMessage{
			ChatID:  msg.ChatID,
			Content: state.FinalResponse,
			Media:   c.artifactMedia(state.ArtifactPaths),
		}})
	}

	_ = c.stores.Tasks.Update(task)
	_ = c.stores.Conversation.Append(store.ConversationHistoryRecord{
		UserID: msg.UserID, Role: store.RoleUser, Text: msg.Content, Timestamp: time.Now(),
	})
	if task.Result != "" {
		_ = c.stores.Conversation.Append(store.ConversationHistoryRecord{
			UserID: msg.UserID, Role: store.RoleAssistant, Text: task.Result, Timestamp: time.Now(),
		})
	}
}

func taskStatusFor(v pipeline.Verdict) store.TaskStatus {
	if v == pipeline.VerdictPass {
		return store.TaskDone
	}
	return store.TaskFailed
}

func (c *Coordinator) recentConversation(userID string) []pipeline.ConversationTurn {
	if c.stores.Conversation == nil {
		return nil
	}
	records := c.stores.Conversation.Recent(userID, 10)
	turns := make([]pipeline.ConversationTurn, 0, len(records))
	for _, r := range records {
		turns = append(turns, pipeline.ConversationTurn{Role: string(r.Role), Text: r.Text, At: r.Timestamp})
	}
	return turns
}

// startStatusPoll begins a goroutine that edits the chat status message
// only when the (stage, live-output-tail) view actually changes, so a
// caller idling mid-execution doesn't churn the chat platform's
// rate-limited edit API on every poll tick.
func (c *Coordinator) startStatusPoll(ctx context.Context, taskID, chatID string) func() {
	pollCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.statusPollPeriod)
		defer ticker.Stop()
		var lastHash string
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				stage, _ := c.tracker.Get(taskID)
				var tail []string
				if buf, ok := c.liveOutputs.Get(taskID); ok {
					full := buf.Tail()
					if len(full) > 3 {
						tail = full[len(full)-3:]
					} else {
						tail = full
					}
				}
				view := string(stage) + "|" + strings.Join(tail, "\n")
				h := hashView(view)
				if h == lastHash {
					continue
				}
				lastHash = h
				c.events.Broadcast(bus.Event{
					Name:   protocol.EventStageChanged,
					TaskID: taskID,
					Payload: bus.OutboundMessage{ChatID: chatID, Content: view},
				})
			}
		}
	}()
	return cancel
}

func hashView(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// Cancel signals every in-flight task for userID; completion after
// cancellation is best-effort (the worker may already be past the point
// where it checks ctx.Err()).
func (c *Coordinator) Cancel(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for taskID, cancel := range c.cancel {
		task, ok := c.stores.Tasks.Get(taskID)
		if !ok || task.UserID != userID {
			continue
		}
		cancel()
		n++
	}
	return n
}

func (c *Coordinator) clearCancel(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancel, taskID)
}

func (c *Coordinator) clearConsumedFiles(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.consumedFiles, taskID)
}

// Status lists every in-flight task the tracker currently knows about
// for userID, with its current stage.
func (c *Coordinator) Status(userID string) []TaskStatusView {
	var out []TaskStatusView
	c.mu.Lock()
	ids := make([]string, 0, len(c.cancel))
	for id := range c.cancel {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		task, ok := c.stores.Tasks.Get(id)
		if !ok || task.UserID != userID {
			continue
		}
		stage, _ := c.tracker.Get(id)
		out = append(out, TaskStatusView{TaskID: id, Stage: string(stage)})
	}
	return out
}

// TaskStatusView is a lightweight status snapshot for the `status` command.
type TaskStatusView struct {
	TaskID string
	Stage  string
}

// ConversationHistory returns userID's recent conversation turns, for the
// `context` command's view mode.
func (c *Coordinator) ConversationHistory(userID string, limit int) []store.ConversationHistoryRecord {
	if c.stores.Conversation == nil {
		return nil
	}
	return c.stores.Conversation.Recent(userID, limit)
}

// ClearConversation clears userID's conversation history, for the
// `context` command's clear mode.
func (c *Coordinator) ClearConversation(userID string) error {
	if c.stores.Conversation == nil {
		return nil
	}
	return c.stores.Conversation.Clear(userID)
}

// History returns userID's most recent tasks, for the `history` command.
func (c *Coordinator) History(userID string, limit int) []*store.Task {
	return c.stores.Tasks.ListRecent(userID, limit)
}

// ListProjects returns the registered projects, for the `listprojects`
// command.
func (c *Coordinator) ListProjects() []projects.Project {
	if c.deps.Registry == nil {
		return nil
	}
	return c.deps.Registry.All()
}

// Exec runs a single command straight through the sandbox's safety layer,
// bypassing the classify/plan/audit stages entirely — the `exec` command
// is for an operator who already knows exactly what to run.
func (c *Coordinator) Exec(ctx context.Context, userID, command string) (*sandbox.ExecResult, error) {
	if err := c.guard.Admit(userID); err != nil {
		return nil, err
	}
	defer c.guard.Release()

	taskID := uuid.NewString()
	workDir := filepath.Join(c.deps.OutputsDir, taskID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("coordinator: prepare exec workspace: %w", err)
	}
	timeout := time.Duration(c.deps.ExecTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return c.deps.Sandbox.Exec(execCtx, sandbox.ExecRequest{
		Command:      command,
		TaskID:       taskID,
		WorkspaceDir: workDir,
		Timeout:      timeout,
	})
}
