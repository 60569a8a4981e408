// Package file implements the store interfaces against flat JSON files,
// for standalone mode when no Postgres DSN is configured.
package file

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/taskrunner/gateway/internal/store"
)

// Store implements the task, conversation, API-usage and project-memory
// stores (the last two through UsageView and MemoryView) against one JSON
// file per entity kind under a directory, loaded fully into memory at
// startup and rewritten on every mutation — adequate for the
// single-operator scale this mode targets. It has no scheduler-job store.
type Store struct {
	dir string
	mu  sync.Mutex

	tasks        map[string]*store.Task
	conversation []store.ConversationHistoryRecord
	usage        []store.ApiUsageRecord
	memory       []store.ProjectMemoryRecord
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:   dir,
		tasks: make(map[string]*store.Task),
	}
	s.loadAll()
	return s, nil
}

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

func (s *Store) loadAll() {
	loadJSON(s.path("tasks.json"), &s.tasks)
	if s.tasks == nil {
		s.tasks = make(map[string]*store.Task)
	}
	loadJSON(s.path("conversation.json"), &s.conversation)
	loadJSON(s.path("usage.json"), &s.usage)
	loadJSON(s.path("memory.json"), &s.memory)
}

func loadJSON(path string, dst any) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, dst)
}

func saveJSON(path string, src any) error {
	data, err := json.MarshalIndent(src, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// --- TaskStore ---

func (s *Store) Create(t *store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return saveJSON(s.path("tasks.json"), s.tasks)
}

func (s *Store) Update(t *store.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return saveJSON(s.path("tasks.json"), s.tasks)
}

func (s *Store) Get(id string) (*store.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

func (s *Store) GetByPrefix(prefix string) (*store.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *store.Task
	for id, t := range s.tasks {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			if best == nil || t.CreatedAt.After(best.CreatedAt) {
				best = t
			}
		}
	}
	return best, best != nil
}

func (s *Store) ListRecent(userID string, limit int) []*store.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Task
	for _, t := range s.tasks {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) RewriteRunningToCrashed() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now()
	for _, t := range s.tasks {
		if t.Status == store.TaskPending || t.Status == store.TaskRunning {
			t.Status = store.TaskCrashed
			t.CompletedAt = &now
			n++
		}
	}
	if n > 0 {
		if err := saveJSON(s.path("tasks.json"), s.tasks); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *Store) Prune(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for id, t := range s.tasks {
		if t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			n++
		}
	}
	if n > 0 {
		if err := saveJSON(s.path("tasks.json"), s.tasks); err != nil {
			return n, err
		}
	}
	return n, nil
}

// --- ConversationStore ---

func (s *Store) Append(rec store.ConversationHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, rec)
	return saveJSON(s.path("conversation.json"), s.conversation)
}

func (s *Store) Recent(userID string, limit int) []store.ConversationHistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.ConversationHistoryRecord
	for _, rec := range s.conversation {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (s *Store) Clear(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.conversation[:0]
	for _, rec := range s.conversation {
		if rec.UserID != userID {
			kept = append(kept, rec)
		}
	}
	s.conversation = kept
	return saveJSON(s.path("conversation.json"), s.conversation)
}

func (s *Store) PruneOlderThan(age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-age)
	kept := s.conversation[:0]
	n := 0
	for _, rec := range s.conversation {
		if rec.Timestamp.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.conversation = kept
	if n > 0 {
		if err := saveJSON(s.path("conversation.json"), s.conversation); err != nil {
			return n, err
		}
	}
	return n, nil
}

// --- ApiUsageStore ---

func (s *Store) AppendUsage(rec store.ApiUsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, rec)
	return saveJSON(s.path("usage.json"), s.usage)
}

func (s *Store) SumSince(sinceEpoch int64) (inputTokens, outputTokens, thinkingTokens int, costUSD float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.usage {
		if rec.EpochSeconds >= sinceEpoch {
			inputTokens += rec.InputTokens
			outputTokens += rec.OutputTokens
			thinkingTokens += rec.ThinkingTokens
			costUSD += rec.EstimatedCostUSD
		}
	}
	return
}

func (s *Store) Breakdown(sinceEpoch int64) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64)
	for _, rec := range s.usage {
		if rec.EpochSeconds >= sinceEpoch {
			out[rec.Model] += rec.EstimatedCostUSD
		}
	}
	return out
}

func (s *Store) PruneUsageOlderThan(age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-age).Unix()
	kept := s.usage[:0]
	n := 0
	for _, rec := range s.usage {
		if rec.EpochSeconds < cutoff {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	s.usage = kept
	if n > 0 {
		if err := saveJSON(s.path("usage.json"), s.usage); err != nil {
			return n, err
		}
	}
	return n, nil
}

// --- ProjectMemoryStore ---

func (s *Store) AppendMemory(rec store.ProjectMemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory = append(s.memory, rec)
	return saveJSON(s.path("memory.json"), s.memory)
}

func (s *Store) RecentMemory(project string, limit int) []store.ProjectMemoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.ProjectMemoryRecord
	for _, rec := range s.memory {
		if rec.Project == project {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// UsageView adapts Store to store.ApiUsageStore: Go can't overload a
// method name across interfaces on one receiver, so each entity kind that
// shares the "Append" verb gets a thin named view over the same Store.
type UsageView struct{ *Store }

func (v UsageView) Append(rec store.ApiUsageRecord) error { return v.AppendUsage(rec) }

func (v UsageView) PruneOlderThan(age time.Duration) (int, error) {
	return v.PruneUsageOlderThan(age)
}

// MemoryView adapts Store to store.ProjectMemoryStore.
type MemoryView struct{ *Store }

func (v MemoryView) Append(rec store.ProjectMemoryRecord) error { return v.AppendMemory(rec) }

func (v MemoryView) Recent(project string, limit int) []store.ProjectMemoryRecord {
	return v.RecentMemory(project, limit)
}

// Stores assembles a full store.Stores from one file-backed Store.
func (s *Store) Stores() *store.Stores {
	return &store.Stores{
		Tasks:         s,
		Conversation:  s,
		ApiUsage:      UsageView{s},
		ProjectMemory: MemoryView{s},
	}
}
