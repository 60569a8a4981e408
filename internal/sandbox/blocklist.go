package sandbox

import "regexp"

// tier1Patterns refuse execution outright before the command ever runs,
// using the `(?s)` flag (`.` also matches a newline) so a pattern still matches when the
// dangerous fragment is split across lines inside a heredoc: every
// tier-1 pattern must be refused even in heredoc/multiline context.
var tier1Patterns = compileAll([]string{
	// Destructive file operations
	`(?s)\brm\s+-[rf]{1,2}\b`,
	`(?s)\brm\s+.*--recursive`,
	`(?s)\brm\s+.*--force`,
	`(?s)\bdel\s+/[fq]\b`,
	`(?s)\brmdir\s+/s\b`,
	`(?s)\b(mkfs|diskpart)\b|\bformat\s`,
	`(?s)\bdd\s+if=`,
	`(?s)>\s*/dev/sd[a-z]\b`,
	`(?s)\b(shutdown|reboot|poweroff)\b`,
	`(?s):\(\)\s*\{.*\};\s*:`, // fork bomb

	// Data exfiltration
	`(?s)\bcurl\b.*\|\s*(ba)?sh\b`,
	`(?s)\bcurl\b.*(-d\b|-F\b|--data|--upload|--form|-T\b|-X\s*P(UT|OST|ATCH))`,
	`(?s)\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`,
	`(?s)\bwget\b.*--post-(data|file)`,
	`(?s)\b(nslookup|dig|host)\b`,
	`(?s)/dev/tcp/`,

	// Reverse shells
	`(?s)\b(nc|ncat|netcat)\b.*-[el]\b`,
	`(?s)\bsocat\b`,
	`(?s)\bopenssl\b.*s_client`,
	`(?s)\btelnet\b.*\d+`,
	`(?s)\bpython[23]?\b.*\bimport\s+(socket|http\.client|urllib|requests)\b`,
	`(?s)\bperl\b.*-e\s*.*\b[Ss]ocket\b`,
	`(?s)\bruby\b.*-e\s*.*\b(TCPSocket|Socket)\b`,
	`(?s)\bnode\b.*-e\s*.*\b(net\.connect|child_process)\b`,
	`(?s)\bawk\b.*/inet/`,
	`(?s)\bmkfifo\b`,

	// Eval / code injection
	`(?s)\beval\s*\$`,
	`(?s)\bbase64\s+-d\b.*\|\s*(ba)?sh\b`,

	// Privilege escalation
	`(?s)\bsudo\b`,
	`(?s)\bsu\s+-`,
	`(?s)\bnsenter\b`,
	`(?s)\bunshare\b`,
	`(?s)\b(mount|umount)\b`,
	`(?s)\b(capsh|setcap|getcap)\b`,

	// Dangerous path operations
	`(?s)\bchmod\s+[0-7]{3,4}\s+/`,
	`(?s)\bchown\b.*\s+/`,
	`(?s)\bchmod\b.*\+x.*/tmp/`,
	`(?s)\bchmod\b.*\+x.*/var/tmp/`,
	`(?s)\bchmod\b.*\+x.*/dev/shm/`,

	// Environment variable injection
	`(?s)\bLD_PRELOAD\s*=`,
	`(?s)\bDYLD_INSERT_LIBRARIES\s*=`,
	`(?s)\bLD_LIBRARY_PATH\s*=`,
	`(?s)/etc/ld\.so\.preload`,
	`(?s)\bGIT_EXTERNAL_DIFF\s*=`,
	`(?s)\bGIT_DIFF_OPTS\s*=`,
	`(?s)\bBASH_ENV\s*=`,
	`(?s)\bENV\s*=.*\bsh\b`,

	// Container escape
	`(?s)/var/run/docker\.sock|docker\.(sock|socket)`,
	`(?s)/proc/sys/(kernel|fs|net)/`,
	`(?s)/sys/(kernel|fs|class|devices)/`,

	// Crypto mining
	`(?s)\b(xmrig|cpuminer|minerd|cgminer|bfgminer|ethminer|nbminer|t-rex|phoenixminer|lolminer|gminer|claymore)\b`,
	`(?s)stratum\+tcp://|stratum\+ssl://`,

	// Filter bypass
	`(?s)\bsed\b.*['"]/e\b`,
	`(?s)\bsort\b.*--compress-program`,
	`(?s)\bgit\b.*(--upload-pack|--receive-pack|--exec)=`,
	`(?s)\b(rg|grep)\b.*--pre=`,
	`(?s)\bman\b.*--html=`,
	`(?s)\bhistory\b.*-[saw]\b`,
	`(?s)\$\{[^}]*@[PpEeAaKk]\}`,

	// Network recon / tunneling
	`(?s)\b(nmap|masscan|zmap|rustscan)\b`,
	`(?s)\b(ssh|scp|sftp)\b.*@`,
	`(?s)\b(chisel|frp|ngrok|cloudflared|bore|localtunnel)\b`,

	// Persistence
	`(?s)\bcrontab\b`,
	`(?s)>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`,
	`(?s)\btee\b.*\.(bashrc|bash_profile|profile|zshrc)`,

	// Process manipulation
	`(?s)\bkill\s+-9\s`,
	`(?s)\b(killall|pkill)\b`,

	// Environment variable dumping
	`(?m)^\s*env\s*$`,
	`(?m)^\s*env\s*\|`,
	`(?m)^\s*env\s*>\s`,
	`(?s)\bprintenv\b`,
	`(?m)^\s*(set|export\s+-p|declare\s+-x)\s*($|\|)`,
	`(?s)\bcompgen\s+-e\b`,
})

// tier3Patterns are logged for audit but do not block execution — these
// are legitimate but higher-risk operations (network access, package
// installs) an operator should be able to see happened without being
// forced to pre-approve every one.
var tier3Patterns = compileAll([]string{
	`(?s)\b(pip|pip3)\s+install\b`,
	`(?s)\b(npm|yarn|pnpm)\s+(install|add)\b`,
	`(?s)\bgo\s+(get|install)\b`,
	`(?s)\bapt(-get)?\s+install\b`,
	`(?s)\bgit\s+clone\b`,
	`(?s)\bcurl\b`,
	`(?s)\bwget\b`,
	`(?s)\bssh-keygen\b`,
	`(?s)\bdocker\s+(build|run|pull)\b`,
	`(?s)\bchmod\s+\+x\b`,
	`(?s)\bkill\b`,
	`(?s)\bnohup\b`,
})

// tier4Patterns scan the literal content of generated code (not the
// shell command line invoking it) for the same class of danger expressed
// in a source file rather than on a command line — e.g. a Python script
// that imports `os` and calls `os.system`. Skipped for the container
// backend, where the blast radius is already bounded by the container.
var tier4Patterns = compileAll([]string{
	`(?s)\bos\.system\s*\(`,
	`(?s)\bsubprocess\.(Popen|call|run)\s*\(.*shell\s*=\s*True`,
	`(?s)\b__import__\s*\(\s*['"]os['"]\s*\)`,
	`(?s)\beval\s*\(`,
	`(?s)\bexec\s*\(`,
	`(?s)\bchild_process\.(exec|spawn)\s*\(`,
	`(?s)\bRuntime\.getRuntime\(\)\.exec\(`,
	`(?s)\bnet\.connect\s*\(`,
})

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// MatchTier1 reports the first tier-1 pattern a command matches, if any.
func MatchTier1(command string) (string, bool) {
	for _, p := range tier1Patterns {
		if p.MatchString(command) {
			return p.String(), true
		}
	}
	return "", false
}

// MatchTier3 returns every tier-3 pattern a command matches, for audit
// logging; the command is not blocked.
func MatchTier3(command string) []string {
	var matches []string
	for _, p := range tier3Patterns {
		if p.MatchString(command) {
			matches = append(matches, p.String())
		}
	}
	return matches
}

// MatchTier4 reports the first tier-4 pattern matched inside generated
// code content.
func MatchTier4(code string) (string, bool) {
	for _, p := range tier4Patterns {
		if p.MatchString(code) {
			return p.String(), true
		}
	}
	return "", false
}
