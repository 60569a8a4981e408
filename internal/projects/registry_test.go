package projects

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects.json5")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	return path
}

const sampleRegistry = `{
  projects: [
    {
      name: "blog",
      path: "/srv/blog",
      description: "the personal blog",
      commands: { deploy: "make deploy" },
      triggers: ["the blog", "blog site"],
    },
    {
      name: "api",
      path: "/srv/api",
      description: "the internal api",
      commands: { test: "go test ./..." },
      triggers: ["the api"],
    },
  ],
}`

func TestLoad_ParsesJSON5Registry(t *testing.T) {
	r, err := Load(writeRegistry(t, sampleRegistry))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	all := r.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d projects, want 2", len(all))
	}
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json5")); err == nil {
		t.Errorf("expected an error for a missing registry file")
	}
}

func TestMatchTrigger_PrefersLongestMatch(t *testing.T) {
	r, err := Load(writeRegistry(t, sampleRegistry))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	p, ok := r.MatchTrigger("please redeploy the blog site now")
	if !ok {
		t.Fatalf("expected a trigger match")
	}
	if p.Name != "blog" {
		t.Errorf("MatchTrigger() = %q, want blog (the longer trigger)", p.Name)
	}
}

func TestMatchTrigger_NoMatchReturnsFalse(t *testing.T) {
	r, err := Load(writeRegistry(t, sampleRegistry))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, ok := r.MatchTrigger("do something unrelated"); ok {
		t.Errorf("expected no trigger match")
	}
}

func TestByName_FindsExactProject(t *testing.T) {
	r, err := Load(writeRegistry(t, sampleRegistry))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	p, ok := r.ByName("api")
	if !ok || p.Path != "/srv/api" {
		t.Errorf("ByName(api) = %+v, %v, want the api project", p, ok)
	}
}

func TestByName_UnknownNameReturnsFalse(t *testing.T) {
	r, err := Load(writeRegistry(t, sampleRegistry))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, ok := r.ByName("nope"); ok {
		t.Errorf("expected ByName(nope) to report false")
	}
}

func TestSummary_ListsEveryProjectNameAndDescription(t *testing.T) {
	r, err := Load(writeRegistry(t, sampleRegistry))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	summary := r.Summary()
	if !strings.Contains(summary, "blog") || !strings.Contains(summary, "the personal blog") {
		t.Errorf("Summary() = %q, want it to mention blog and its description", summary)
	}
}
