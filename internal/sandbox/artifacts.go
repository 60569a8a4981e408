package sandbox

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// artifactDeclRe matches the explicit artifact declaration a generated
// script can print to stdout to name its own output files precisely,
// instead of relying on the mtime-diff fallback: one line of the form
// ARTIFACTS: ["relative/path", ...].
var artifactDeclRe = regexp.MustCompile(`(?m)^ARTIFACTS:\s*(\[.*\])\s*$`)

// fileSnapshot maps a workspace-relative path to its mtime, taken before
// a command runs so DetectArtifacts can diff against it after.
type fileSnapshot map[string]time.Time

// snapshotWorkspace walks workspaceDir and records every file's mtime.
func snapshotWorkspace(workspaceDir string) fileSnapshot {
	snap := make(fileSnapshot)
	if workspaceDir == "" {
		return snap
	}
	_ = filepath.Walk(workspaceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(workspaceDir, path)
		if relErr != nil {
			return nil
		}
		snap[rel] = info.ModTime()
		return nil
	})
	return snap
}

// skipArtifactDirs are never reported as artifacts even if their mtime
// changed — tooling caches and VCS metadata, not task output.
var skipArtifactDirs = []string{".git", "node_modules", "__pycache__", ".venv", "vendor"}

// DetectArtifacts finds files the command produced or modified: first by
// parsing an explicit ARTIFACTS: declaration in stdout (keeping only the
// declared paths that exist as non-empty files), otherwise by diffing
// file mtimes against the pre-execution snapshot. The mtime
// fallback is narrowed by sanityThreshold: if more files changed than
// that, the diff is almost certainly noise (a full rebuild, a package
// install) rather than a deliberate output set, so nothing is reported
// rather than flooding the delivery with unrelated files.
func DetectArtifacts(workspaceDir string, before fileSnapshot, stdout string, sanityThreshold int) []string {
	if m := artifactDeclRe.FindStringSubmatch(stdout); m != nil {
		var declared []string
		if err := json.Unmarshal([]byte(m[1]), &declared); err == nil {
			var found []string
			for _, p := range declared {
				info, err := os.Stat(filepath.Join(workspaceDir, p))
				if p != "" && err == nil && !info.IsDir() && info.Size() > 0 {
					found = append(found, p)
				}
			}
			if len(found) > 0 {
				return found
			}
		}
	}

	if workspaceDir == "" {
		return nil
	}

	var changed []string
	_ = filepath.Walk(workspaceDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(workspaceDir, path)
		if relErr != nil {
			return nil
		}
		for _, skip := range skipArtifactDirs {
			if strings.HasPrefix(rel, skip+string(filepath.Separator)) || rel == skip {
				return nil
			}
		}
		prior, existed := before[rel]
		if !existed || info.ModTime().After(prior) {
			changed = append(changed, rel)
		}
		return nil
	})

	if sanityThreshold > 0 && len(changed) > sanityThreshold {
		return nil
	}
	return changed
}
