package sandbox

import "strings"

// reservedEnvKeys are stripped from the child process environment
// exactly, regardless of case.
var reservedEnvKeys = map[string]bool{
	"ANTHROPIC_API_KEY":   true,
	"OPENAI_API_KEY":      true,
	"TASKRUNNER_POSTGRES_DSN": true,
	"TASKRUNNER_TELEGRAM_TOKEN": true,
	"AWS_ACCESS_KEY_ID":     true,
	"AWS_SECRET_ACCESS_KEY": true,
	"AWS_SESSION_TOKEN":     true,
	"GITHUB_TOKEN":          true,
	"GH_TOKEN":              true,
	"DOCKER_AUTH_CONFIG":    true,
}

// reservedEnvSubstrings are matched against every env var's key
// case-insensitively; any key containing one of these is stripped, which
// catches secrets the exact-key list can't anticipate by name: the
// child env omits every reserved/protected-substring variable.
var reservedEnvSubstrings = []string{
	"KEY",
	"TOKEN",
	"SECRET",
	"PASSWORD",
	"CREDENTIAL",
}

// StripEnv filters a parent environment (`os.Environ()`-shaped "K=V"
// entries) down to what a sandboxed child process is allowed to see,
// then overlays extra with whatever the caller wants to add back in
// (e.g. a package manager cache directory).
func StripEnv(parent []string, extra map[string]string) []string {
	out := make([]string, 0, len(parent)+len(extra))
	for _, kv := range parent {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if isReservedEnvKey(key) {
			continue
		}
		out = append(out, kv)
	}
	for k, v := range extra {
		if isReservedEnvKey(k) {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

func isReservedEnvKey(key string) bool {
	upper := strings.ToUpper(key)
	if reservedEnvKeys[upper] {
		return true
	}
	for _, substr := range reservedEnvSubstrings {
		if strings.Contains(upper, substr) {
			return true
		}
	}
	return false
}
