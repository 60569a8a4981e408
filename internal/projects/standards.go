package projects

import (
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// StandardsLoader holds the coding-standards excerpt the Planner appends
// to code-producing prompts, truncated to a fixed character cap and
// invalidated on file change rather than re-read on every call.
type StandardsLoader struct {
	mu      sync.RWMutex
	path    string
	capChars int
	text    string
	watcher *fsnotify.Watcher
}

func LoadStandards(path string, capChars int) (*StandardsLoader, error) {
	if capChars <= 0 {
		capChars = 4000
	}
	s := &StandardsLoader{path: path, capChars: capChars}
	if path == "" {
		return s, nil
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StandardsLoader) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	text := string(data)
	if len(text) > s.capChars {
		text = text[:s.capChars]
	}
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
	return nil
}

// Watch hot-reloads the standards file on write, same pattern as Registry.
func (s *StandardsLoader) Watch() error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.path); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	go func() {
		for ev := range w.Events {
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if err := s.reload(); err != nil {
					slog.Warn("coding standards reload failed", "error", err, "path", s.path)
				}
			}
		}
	}()
	return nil
}

func (s *StandardsLoader) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Text returns the current (already-truncated) standards excerpt.
func (s *StandardsLoader) Text() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.text
}
