package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskrunner/gateway/internal/bus"
	"github.com/taskrunner/gateway/internal/channels/telegram"
	"github.com/taskrunner/gateway/internal/config"
	"github.com/taskrunner/gateway/internal/coordinator"
	"github.com/taskrunner/gateway/internal/guard"
	"github.com/taskrunner/gateway/internal/pipeline"
	"github.com/taskrunner/gateway/internal/projects"
	"github.com/taskrunner/gateway/internal/providers"
	"github.com/taskrunner/gateway/internal/sandbox"
	"github.com/taskrunner/gateway/internal/scheduler"
	"github.com/taskrunner/gateway/internal/store"
	"github.com/taskrunner/gateway/internal/store/file"
	"github.com/taskrunner/gateway/internal/store/pg"
	"github.com/taskrunner/gateway/internal/store/sqlite"
	"github.com/taskrunner/gateway/internal/tracing"
)

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.HasRemoteProvider() {
		slog.Error("no remote provider configured", "hint", "set TASKRUNNER_ANTHROPIC_API_KEY")
		os.Exit(1)
	}

	shutdownTracing, err := tracing.Init(context.Background())
	if err != nil {
		slog.Warn("tracing init failed, continuing without OTLP export", "error", err)
	} else {
		defer shutdownTracing(context.Background())
	}

	uploadsDir := config.ExpandHome(cfg.Sandbox.UploadsDir)
	outputsDir := config.ExpandHome(cfg.Sandbox.OutputsDir)
	os.MkdirAll(uploadsDir, 0o755)
	os.MkdirAll(outputsDir, 0o755)

	stores, closeStores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	if n, err := stores.Tasks.RewriteRunningToCrashed(); err != nil {
		slog.Warn("failed to rewrite stale running tasks", "error", err)
	} else if n > 0 {
		slog.Info("rewrote stale running tasks to crashed at startup", "count", n)
	}

	jobStore, err := sqlite.Open(config.ExpandHome(cfg.Database.SchedulerSQLitePath))
	if err != nil {
		slog.Error("failed to open scheduler job store", "error", err)
		os.Exit(1)
	}
	defer jobStore.Close()
	stores.SchedulerJobs = jobStore

	guardian := guard.New(cfg.Guard.MaxInFlight, cfg.Guard.RAMThresholdPct, time.Duration(cfg.Guard.CooldownSec)*time.Second)

	remote := providers.NewRemoteProvider(cfg.Providers.Remote.APIKey, cfg.Providers.Remote.DefaultModel,
		providers.WithRemoteBaseURL(cfg.Providers.Remote.BaseURL),
		providers.WithRemoteHighCapModel(cfg.Providers.Remote.HighCapModel),
	)
	var local *providers.LocalProvider
	if cfg.Providers.Local.Enabled {
		local = providers.NewLocalProvider(cfg.Providers.Local.Endpoint, cfg.Providers.Local.DefaultModel)
	}
	budget := providers.NewBudget(stores.ApiUsage, cfg.Budget.DailyCapUSD, cfg.Budget.MonthlyCapUSD, cfg.Budget.EscalationFrac)
	router := providers.NewRouter(remote, local, budget, cfg.Providers.Local.RAMThresholdPct)
	gateway := providers.NewGateway(router, budget)

	sandboxGuard := sandbox.New(cfg.Sandbox)

	registry, err := projects.Load(config.ExpandHome(cfg.Projects.RegistryPath))
	if err != nil {
		slog.Warn("project registry unavailable, continuing without it", "error", err)
		registry = &projects.Registry{}
	} else if err := registry.Watch(); err != nil {
		slog.Warn("project registry watch failed", "error", err)
	}

	standards, err := projects.LoadStandards(config.ExpandHome(cfg.Projects.CodingStandardsPath), cfg.Projects.CodingStandardsCapChars)
	if err != nil {
		slog.Warn("coding standards unavailable, continuing without them", "error", err)
		standards, _ = projects.LoadStandards("", cfg.Projects.CodingStandardsCapChars)
	} else if err := standards.Watch(); err != nil {
		slog.Warn("coding standards watch failed", "error", err)
	}

	deps := &pipeline.Deps{
		Gateway:            gateway,
		Sandbox:            sandboxGuard,
		Registry:           registry,
		Standards:          standards,
		Stores:             stores,
		ExecTimeoutSec:     cfg.Gateway.ExecTimeoutSec,
		PipelineMaxRetries: cfg.Gateway.PipelineRetries,
		OutputsDir:         outputsDir,
		FileInjectionCap:   cfg.Gateway.FileInjectionCapChars,
	}
	tracker := pipeline.NewStageTracker()
	graph := pipeline.NewGraph(deps, tracker)

	msgBus := bus.NewMemoryBus()

	coord := coordinator.New(coordinator.Config{
		Guard:            guardian,
		Graph:            graph,
		Deps:             deps,
		Tracker:          tracker,
		LiveOutputs:      sandboxGuard.LiveOutputs(),
		Stores:           stores,
		Events:           msgBus,
		PipelineTimeout:  time.Duration(cfg.Gateway.PipelineTimeoutSec) * time.Second,
		StatusPollPeriod: time.Duration(cfg.Gateway.StatusPollIntervalMs) * time.Millisecond,
		ArtifactMaxBytes: cfg.Gateway.UploadMaxBytes,
	})

	sched := scheduler.New(stores.SchedulerJobs, cfg.Cron.MaxRetries)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var tg *telegram.Channel
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg, err = telegram.New(telegram.Deps{
			Config:         cfg.Channels.Telegram,
			OwnerIDs:       cfg.Gateway.OwnerIDs,
			Coordinator:    coord,
			Router:         router,
			Scheduler:      sched,
			Events:         msgBus,
			MaxInFlight:    cfg.Guard.MaxInFlight,
			UploadsDir:     uploadsDir,
			MaxUploadBytes: cfg.Channels.Telegram.MediaMaxBytes,
		})
		if err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else if err := tg.Start(ctx); err != nil {
			slog.Error("failed to start telegram channel", "error", err)
			tg = nil
		} else {
			slog.Info("telegram channel started")
		}
	} else {
		slog.Warn("no chat front-end configured", "hint", "set TASKRUNNER_TELEGRAM_TOKEN to enable Telegram")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("taskrunner gateway starting", "version", Version, "owners", len(cfg.Gateway.OwnerIDs))

	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	if tg != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := tg.Stop(stopCtx); err != nil {
			slog.Warn("telegram shutdown error", "error", err)
		}
		stopCancel()
	}
	cancel()
}

// openStores builds the Stores aggregate: Postgres when a DSN is
// configured, otherwise the file-backed store for a zero-dependency
// standalone run.
func openStores(cfg *config.Config) (*store.Stores, func(), error) {
	if cfg.IsManagedStorage() {
		pool, err := pg.Open(context.Background(), cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		stores := &store.Stores{
			Tasks:         pg.NewTaskStore(pool),
			Conversation:  pg.NewConversationStore(pool),
			ApiUsage:      pg.NewApiUsageStore(pool),
			ProjectMemory: pg.NewProjectMemoryStore(pool),
		}
		return stores, func() { pool.Close() }, nil
	}

	dir := config.ExpandHome("~/.taskrunner/store")
	os.MkdirAll(dir, 0o755)
	fileStore, err := file.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	return fileStore.Stores(), func() {}, nil
}
