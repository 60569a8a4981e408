package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults for guard, budget,
// and sandbox thresholds.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ExecTimeoutSec:        120,
			PipelineTimeoutSec:    900,
			PipelineRetries:       3,
			APIRetries:            4,
			UploadMaxBytes:        20 * 1024 * 1024,
			LiveOutputCapLines:    50,
			FileInjectionCapChars: 8000,
			StatusPollIntervalMs:  3000,
			WorkspaceDir:          "~/.taskrunner/workspace",
		},
		Providers: ProvidersConfig{
			Remote: RemoteProviderConfig{
				BaseURL:      "https://api.anthropic.com/v1",
				DefaultModel: "claude-sonnet-4-5-20250929",
				HighCapModel: "claude-opus-4-1-20250805",
			},
			Local: LocalProviderConfig{
				Endpoint:        "http://localhost:11434/v1",
				DefaultModel:    "qwen2.5-coder:14b",
				RAMThresholdPct: 0.75,
			},
		},
		Guard: GuardConfig{
			MaxInFlight:     3,
			RAMThresholdPct: 0.90,
			CooldownSec:     5,
		},
		Budget: BudgetConfig{
			DailyCapUSD:    10,
			MonthlyCapUSD:  150,
			EscalationFrac: 0.70,
		},
		Sandbox: SandboxConfig{
			Backend:                 "subprocess",
			Image:                   "taskrunner-sandbox:bookworm-slim",
			UploadsDir:              "~/.taskrunner/uploads",
			OutputsDir:              "~/.taskrunner/outputs",
			PackageCacheDir:         "~/.taskrunner/pkgcache",
			MemoryMB:                1024,
			CPUs:                    1.0,
			PidsLimit:               128,
			NetworkMode:             "none",
			AvailabilityCacheSec:    60,
			ArtifactSanityThreshold: 20,
			AutoInstallMaxFreeform:  2,
			AutoInstallMaxProject:   5,
		},
		Database: DatabaseConfig{
			SchedulerSQLitePath: "~/.taskrunner/scheduler.db",
		},
		Projects: ProjectsConfig{
			RegistryPath:            "~/.taskrunner/projects.json5",
			CodingStandardsPath:     "~/.taskrunner/CODING_STANDARDS.md",
			CodingStandardsCapChars: 4000,
		},
		Cron: CronConfig{MaxRetries: 3},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: defaults plus env overrides still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values, and secrets (API keys, tokens, DSNs) are
// ONLY ever read from env, never persisted to the config file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envFloat := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	envStr("TASKRUNNER_ANTHROPIC_API_KEY", &c.Providers.Remote.APIKey)
	envStr("TASKRUNNER_ANTHROPIC_BASE_URL", &c.Providers.Remote.BaseURL)
	envStr("TASKRUNNER_REMOTE_MODEL", &c.Providers.Remote.DefaultModel)
	envStr("TASKRUNNER_REMOTE_HIGH_CAP_MODEL", &c.Providers.Remote.HighCapModel)
	envStr("TASKRUNNER_LOCAL_ENDPOINT", &c.Providers.Local.Endpoint)
	envStr("TASKRUNNER_LOCAL_MODEL", &c.Providers.Local.DefaultModel)
	if v := os.Getenv("TASKRUNNER_LOCAL_ENABLED"); v != "" {
		c.Providers.Local.Enabled = v == "true" || v == "1"
	}
	envFloat("TASKRUNNER_LOCAL_RAM_THRESHOLD", &c.Providers.Local.RAMThresholdPct)

	envStr("TASKRUNNER_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}

	if v := os.Getenv("TASKRUNNER_OWNER_IDS"); v != "" {
		c.Gateway.OwnerIDs = strings.Split(v, ",")
	}

	envInt("TASKRUNNER_EXEC_TIMEOUT_SEC", &c.Gateway.ExecTimeoutSec)
	envInt("TASKRUNNER_PIPELINE_TIMEOUT_SEC", &c.Gateway.PipelineTimeoutSec)
	envInt("TASKRUNNER_PIPELINE_RETRIES", &c.Gateway.PipelineRetries)
	envInt("TASKRUNNER_API_RETRIES", &c.Gateway.APIRetries)
	envInt("TASKRUNNER_FILE_INJECTION_CAP_CHARS", &c.Gateway.FileInjectionCapChars)
	if v := os.Getenv("TASKRUNNER_UPLOAD_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Gateway.UploadMaxBytes = n
		}
	}

	envInt("TASKRUNNER_MAX_IN_FLIGHT", &c.Guard.MaxInFlight)
	envFloat("TASKRUNNER_RAM_THRESHOLD", &c.Guard.RAMThresholdPct)
	envInt("TASKRUNNER_COOLDOWN_SEC", &c.Guard.CooldownSec)

	envFloat("TASKRUNNER_DAILY_CAP_USD", &c.Budget.DailyCapUSD)
	envFloat("TASKRUNNER_MONTHLY_CAP_USD", &c.Budget.MonthlyCapUSD)
	envFloat("TASKRUNNER_BUDGET_ESCALATION_FRACTION", &c.Budget.EscalationFrac)

	envStr("TASKRUNNER_SANDBOX_BACKEND", &c.Sandbox.Backend)
	envStr("TASKRUNNER_SANDBOX_IMAGE", &c.Sandbox.Image)
	envStr("TASKRUNNER_SANDBOX_NETWORK_MODE", &c.Sandbox.NetworkMode)
	envInt("TASKRUNNER_SANDBOX_MEMORY_MB", &c.Sandbox.MemoryMB)
	envFloat("TASKRUNNER_SANDBOX_CPUS", &c.Sandbox.CPUs)

	envStr("TASKRUNNER_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("TASKRUNNER_SCHEDULER_SQLITE_PATH", &c.Database.SchedulerSQLitePath)

	envStr("TASKRUNNER_PROJECTS_REGISTRY_PATH", &c.Projects.RegistryPath)
	envStr("TASKRUNNER_CODING_STANDARDS_PATH", &c.Projects.CodingStandardsPath)
}

// HasRemoteProvider reports whether remote model credentials are present.
func (c *Config) HasRemoteProvider() bool {
	return c.Providers.Remote.APIKey != ""
}
