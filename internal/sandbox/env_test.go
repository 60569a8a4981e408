package sandbox

import (
	"strings"
	"testing"
)

func TestStripEnv_RemovesExactReservedKeys(t *testing.T) {
	parent := []string{
		"ANTHROPIC_API_KEY=sk-secret",
		"PATH=/usr/bin",
		"HOME=/home/user",
	}
	out := StripEnv(parent, nil)

	for _, kv := range out {
		if strings.HasPrefix(kv, "ANTHROPIC_API_KEY=") {
			t.Errorf("expected ANTHROPIC_API_KEY to be stripped, got: %v", out)
		}
	}
	if !containsPrefix(out, "PATH=") || !containsPrefix(out, "HOME=") {
		t.Errorf("expected PATH and HOME to survive, got: %v", out)
	}
}

func TestStripEnv_RemovesBySubstringCaseInsensitive(t *testing.T) {
	parent := []string{
		"MY_CUSTOM_secret_VALUE=hunter2",
		"SomeApiToken=abc123",
		"BUILD_ID=42",
	}
	out := StripEnv(parent, nil)

	if containsPrefix(out, "MY_CUSTOM_secret_VALUE=") {
		t.Errorf("expected substring match on SECRET to strip the var, got: %v", out)
	}
	if containsPrefix(out, "SomeApiToken=") {
		t.Errorf("expected substring match on TOKEN to strip the var, got: %v", out)
	}
	if !containsPrefix(out, "BUILD_ID=") {
		t.Errorf("expected BUILD_ID to survive, got: %v", out)
	}
}

func TestStripEnv_OverlaysExtraUnlessReserved(t *testing.T) {
	out := StripEnv(nil, map[string]string{
		"PIP_CACHE_DIR": "/tmp/cache",
		"GITHUB_TOKEN":  "leaked",
	})

	if !containsPrefix(out, "PIP_CACHE_DIR=") {
		t.Errorf("expected PIP_CACHE_DIR to be added, got: %v", out)
	}
	if containsPrefix(out, "GITHUB_TOKEN=") {
		t.Errorf("expected GITHUB_TOKEN in extra to still be filtered, got: %v", out)
	}
}

func TestStripEnv_SkipsMalformedEntries(t *testing.T) {
	out := StripEnv([]string{"NOEQUALSSIGN"}, nil)
	if len(out) != 0 {
		t.Errorf("expected malformed entry to be dropped, got: %v", out)
	}
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
