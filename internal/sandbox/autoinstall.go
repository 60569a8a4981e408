package sandbox

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

// importErrorPatterns extract the missing module name from a failed run's
// stderr across the languages the executor actually generates code in.
var importErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ModuleNotFoundError: No module named '([\w.\-]+)'`),
	regexp.MustCompile(`ImportError: No module named ([\w.\-]+)`),
	regexp.MustCompile(`Cannot find module '([\w./\-@]+)'`),
	regexp.MustCompile(`package ([\w./\-]+) is not in (?:GOROOT|std|GOPATH)`),
}

// pipPackageAliases translates an import name to the pip package that
// provides it, for the common cases where the two differ.
var pipPackageAliases = map[string]string{
	"yaml":      "pyyaml",
	"cv2":       "opencv-python",
	"bs4":       "beautifulsoup4",
	"sklearn":   "scikit-learn",
	"PIL":       "pillow",
	"dotenv":    "python-dotenv",
	"jwt":       "pyjwt",
	"dateutil":  "python-dateutil",
}

// ParseMissingImport inspects a failed run's stderr for a recognizable
// "module not found" error and returns the package name to install, the
// install command's ecosystem ("pip", "npm", or "go"), and whether a
// match was found at all.
func ParseMissingImport(stderr string) (pkg string, ecosystem string, ok bool) {
	if m := importErrorPatterns[0].FindStringSubmatch(stderr); m != nil {
		return resolvePipAlias(m[1]), "pip", true
	}
	if m := importErrorPatterns[1].FindStringSubmatch(stderr); m != nil {
		return resolvePipAlias(m[1]), "pip", true
	}
	if m := importErrorPatterns[2].FindStringSubmatch(stderr); m != nil {
		return m[1], "npm", true
	}
	if m := importErrorPatterns[3].FindStringSubmatch(stderr); m != nil {
		return m[1], "go", true
	}
	return "", "", false
}

func resolvePipAlias(name string) string {
	if alias, ok := pipPackageAliases[name]; ok {
		return alias
	}
	return name
}

func installCommand(ecosystem, pkg string) string {
	switch ecosystem {
	case "pip":
		return "pip install --quiet " + shellQuote(pkg)
	case "npm":
		return "npm install --silent " + shellQuote(pkg)
	case "go":
		return "go get " + shellQuote(pkg)
	default:
		return ""
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// AutoInstaller retries a failed run once per distinct missing package,
// installing it before re-running, up to a caller-supplied cap. project
// tasks get a higher cap than free-form ones: a project's dependency
// set is presumed larger and more trustworthy than an arbitrary chat
// request's.
type AutoInstaller struct {
	mu          sync.Mutex
	backend     Backend
	maxFreeform int
	maxProject  int
}

func NewAutoInstaller(backend Backend, maxFreeform, maxProject int) *AutoInstaller {
	return &AutoInstaller{backend: backend, maxFreeform: maxFreeform, maxProject: maxProject}
}

// RunWithAutoInstall runs req, and on a missing-import failure installs the
// package and retries, until the run succeeds, the failure is unrecognized,
// or the retry cap for isProject is exhausted.
func (a *AutoInstaller) RunWithAutoInstall(ctx context.Context, req ExecRequest, isProject bool, onLine func(stream, line string)) (*ExecResult, error) {
	cap := a.maxFreeform
	if isProject {
		cap = a.maxProject
	}

	tried := make(map[string]bool)
	result, err := a.backend.run(ctx, req, onLine)
	if err != nil {
		return result, err
	}

	for attempt := 0; attempt < cap; attempt++ {
		if result.ExitCode == 0 || result.TimedOut {
			return result, nil
		}
		pkg, ecosystem, found := ParseMissingImport(result.Stderr)
		if !found || tried[pkg] {
			return result, nil
		}
		tried[pkg] = true

		installCmd := installCommand(ecosystem, pkg)
		if installCmd == "" {
			return result, nil
		}

		a.mu.Lock()
		_, installErr := a.backend.run(ctx, ExecRequest{
			Command:      installCmd,
			WorkspaceDir: req.WorkspaceDir,
			TaskID:       req.TaskID,
			Timeout:      req.Timeout,
			Env:          req.Env,
		}, nil)
		a.mu.Unlock()
		if installErr != nil {
			return result, nil
		}

		result, err = a.backend.run(ctx, req, onLine)
		if err != nil {
			return result, err
		}
	}
	return result, nil
}
