// Package projects loads the human-edited project registry and the
// coding-standards excerpt the Planner injects into code-producing
// prompts, and hot-reloads both on file change.
package projects

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Project is one registered project: a known directory with named
// commands the Executor may compose a shell script from, and trigger
// phrases the Classifier matches against an incoming message.
type Project struct {
	Name            string            `json:"name"`
	Path            string            `json:"path"`
	Description     string            `json:"description"`
	Commands        map[string]string `json:"commands"`
	IsolatedEnvPath string            `json:"isolated_env_path,omitempty"`
	TimeoutSec      int               `json:"timeout_sec,omitempty"`
	FileRequired    bool              `json:"file_required,omitempty"`
	Triggers        []string          `json:"triggers"`
}

// Registry holds the parsed project list and supports hot-reload.
type Registry struct {
	mu       sync.RWMutex
	projects []Project
	path     string
	watcher  *fsnotify.Watcher
}

// Load reads and parses the JSON5 registry file at path.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var parsed struct {
		Projects []Project `json:"projects"`
	}
	if err := json5.Unmarshal(data, &parsed); err != nil {
		return err
	}
	r.mu.Lock()
	r.projects = parsed.Projects
	r.mu.Unlock()
	return nil
}

// Watch starts an fsnotify watch on the registry file and reloads it on
// every write, logging and keeping the previous snapshot if the new
// content fails to parse.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.path); err != nil {
		w.Close()
		return err
	}
	r.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := r.reload(); err != nil {
						slog.Warn("project registry reload failed, keeping previous snapshot", "error", err, "path", r.path)
					} else {
						slog.Info("project registry reloaded", "path", r.path, "count", len(r.All()))
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("project registry watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// All returns a snapshot of every registered project.
func (r *Registry) All() []Project {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Project, len(r.projects))
	copy(out, r.projects)
	return out
}

// MatchTrigger finds the registered project whose trigger phrase occurs
// in message (case-insensitive substring), preferring the longest
// matching trigger across all projects so a more specific phrase wins
// over a shorter, more general one.
func (r *Registry) MatchTrigger(message string) (Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(message)
	var best Project
	bestLen := -1
	found := false
	for _, p := range r.projects {
		for _, trig := range p.Triggers {
			t := strings.ToLower(trig)
			if t == "" {
				continue
			}
			if strings.Contains(lower, t) && len(t) > bestLen {
				best = p
				bestLen = len(t)
				found = true
			}
		}
	}
	return best, found
}

// ByName looks up a registered project by exact name.
func (r *Registry) ByName(name string) (Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.projects {
		if p.Name == name {
			return p, true
		}
	}
	return Project{}, false
}

// Summary renders a short listing of every registered project's name and
// description for inclusion in the classifier's prompt.
func (r *Registry) Summary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	for _, p := range r.projects {
		b.WriteString("- ")
		b.WriteString(p.Name)
		b.WriteString(": ")
		b.WriteString(p.Description)
		b.WriteString("\n")
	}
	return b.String()
}
