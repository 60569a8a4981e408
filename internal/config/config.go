// Package config holds the root configuration tree for the task runner
// gateway: provider credentials, guard thresholds, sandbox settings, and
// storage DSNs. Values load from a JSON5 file and are then overlaid with
// environment variables (env always wins).
package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ExpandHome expands a leading "~" into the current user's home
// directory, used by the workspace/uploads/outputs directory config
// fields.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Config is the root configuration for the task runner gateway.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Providers ProvidersConfig `json:"providers"`
	Guard     GuardConfig     `json:"guard"`
	Budget    BudgetConfig    `json:"budget"`
	Sandbox   SandboxConfig   `json:"sandbox"`
	Database  DatabaseConfig  `json:"database"`
	Channels  ChannelsConfig  `json:"channels"`
	Projects  ProjectsConfig  `json:"projects"`
	Cron      CronConfig      `json:"cron,omitempty"`

	mu sync.RWMutex
}

// GatewayConfig holds pipeline-wide operational settings.
type GatewayConfig struct {
	OwnerIDs            []string `json:"owner_ids,omitempty"` // allow-listed operator IDs
	ExecTimeoutSec       int     `json:"exec_timeout_sec,omitempty"`       // per code-run hard cap
	PipelineTimeoutSec   int     `json:"pipeline_timeout_sec,omitempty"`   // overall pipeline timeout
	PipelineRetries      int     `json:"pipeline_retries,omitempty"`       // MAX_RETRIES for audit loop
	APIRetries           int     `json:"api_retries,omitempty"`            // Gateway retry attempts
	UploadMaxBytes       int64   `json:"upload_max_bytes,omitempty"`
	LiveOutputCapLines   int     `json:"live_output_cap_lines,omitempty"`  // ring buffer cap (default 50)
	FileInjectionCapChars int    `json:"file_injection_cap_chars,omitempty"`
	StatusPollIntervalMs int     `json:"status_poll_interval_ms,omitempty"` // default 3000
	WorkspaceDir         string  `json:"workspace_dir,omitempty"`
}

// ProvidersConfig configures the remote and local model backends.
type ProvidersConfig struct {
	Remote RemoteProviderConfig `json:"remote"`
	Local  LocalProviderConfig  `json:"local"`
}

// RemoteProviderConfig configures the Anthropic-style remote provider.
type RemoteProviderConfig struct {
	APIKey          string `json:"-"` // env only: TASKRUNNER_ANTHROPIC_API_KEY
	BaseURL         string `json:"base_url,omitempty"`
	DefaultModel    string `json:"default_model,omitempty"`
	HighCapModel    string `json:"high_capability_model,omitempty"`
}

// LocalProviderConfig configures the local OpenAI-compatible model endpoint.
type LocalProviderConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"` // e.g. http://localhost:11434/v1
	DefaultModel string `json:"default_model,omitempty"`
	RAMThresholdPct float64 `json:"ram_threshold_pct,omitempty"` // default 0.75
}

// GuardConfig configures the resource guards (§5).
type GuardConfig struct {
	MaxInFlight     int     `json:"max_in_flight,omitempty"`      // default 3
	RAMThresholdPct float64 `json:"ram_threshold_pct,omitempty"`   // default 0.90
	CooldownSec     int     `json:"cooldown_sec,omitempty"`        // default 5
}

// BudgetConfig configures spend caps (§4.2).
type BudgetConfig struct {
	DailyCapUSD      float64 `json:"daily_cap_usd,omitempty"`
	MonthlyCapUSD    float64 `json:"monthly_cap_usd,omitempty"`
	EscalationFrac   float64 `json:"escalation_fraction,omitempty"` // default 0.70
}

// SandboxConfig configures the sandbox executor backend.
type SandboxConfig struct {
	Backend         string            `json:"backend,omitempty"` // "subprocess" (default) or "container"
	Image           string            `json:"image,omitempty"`
	UploadsDir      string            `json:"uploads_dir,omitempty"`
	OutputsDir      string            `json:"outputs_dir,omitempty"`
	PackageCacheDir string            `json:"package_cache_dir,omitempty"`
	MemoryMB        int               `json:"memory_mb,omitempty"`
	CPUs            float64           `json:"cpus,omitempty"`
	PidsLimit       int64             `json:"pids_limit,omitempty"`
	NetworkMode     string            `json:"network_mode,omitempty"` // "none", "bridge"
	Env             map[string]string `json:"env,omitempty"`
	AvailabilityCacheSec int          `json:"availability_cache_sec,omitempty"` // default 60
	ArtifactSanityThreshold int       `json:"artifact_sanity_threshold,omitempty"` // default 20
	AutoInstallMaxFreeform  int       `json:"auto_install_max_freeform,omitempty"` // default 2
	AutoInstallMaxProject   int       `json:"auto_install_max_project,omitempty"`  // default 5
}

// DatabaseConfig configures persistence backends.
type DatabaseConfig struct {
	PostgresDSN    string `json:"-"` // env only: TASKRUNNER_POSTGRES_DSN
	SchedulerSQLitePath string `json:"scheduler_sqlite_path,omitempty"`
}

// ChannelsConfig configures chat front-end adapters.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

// TelegramConfig configures the Telegram chat front-end. The operator
// allow-list itself lives on GatewayConfig.OwnerIDs: there is a single
// operator-id allow-list, not one per channel.
type TelegramConfig struct {
	Enabled       bool   `json:"enabled,omitempty"`
	Token         string `json:"-"` // env only: TASKRUNNER_TELEGRAM_TOKEN
	Proxy         string `json:"proxy,omitempty"`
	MediaMaxBytes int64  `json:"media_max_bytes,omitempty"`
}

// ProjectsConfig points at the human-edited project registry and coding
// standards files.
type ProjectsConfig struct {
	RegistryPath        string `json:"registry_path,omitempty"`
	CodingStandardsPath string `json:"coding_standards_path,omitempty"`
	CodingStandardsCapChars int `json:"coding_standards_cap_chars,omitempty"`
}

// CronConfig configures the scheduler adapter: MaxRetries is the
// per-dispatch retry budget it reports to the external scheduler
// collaborator. Trigger expressions are validated by
// scheduler.Adapter.Create, not here.
type CronConfig struct {
	MaxRetries int `json:"max_retries,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Nothing in this module calls it; the registry and coding-standards
// files hot-reload through their own watchers in internal/projects.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Providers = src.Providers
	c.Guard = src.Guard
	c.Budget = src.Budget
	c.Sandbox = src.Sandbox
	c.Database = src.Database
	c.Channels = src.Channels
	c.Projects = src.Projects
	c.Cron = src.Cron
}

// IsManagedStorage reports whether a Postgres DSN is configured; otherwise
// the gateway falls back to the file-backed store (standalone mode).
func (c *Config) IsManagedStorage() bool {
	return c.Database.PostgresDSN != ""
}
