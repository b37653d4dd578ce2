package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/edusync/assignsync/internal/models"
	"github.com/edusync/assignsync/pkg/cache"
	"github.com/edusync/assignsync/pkg/config"
	"github.com/edusync/assignsync/pkg/device"
	"github.com/edusync/assignsync/pkg/nats"
	"github.com/edusync/assignsync/pkg/remote"
	"github.com/edusync/assignsync/pkg/settings"
	"github.com/edusync/assignsync/pkg/state"
	syncengine "github.com/edusync/assignsync/pkg/sync"
)

const (
	defaultConfigPath = "config.yaml"
	gracefulTimeout   = 30 * time.Second
	syncTimeout       = 2 * time.Minute
)

var (
	configPath = flag.String("config", defaultConfigPath, "Path to configuration file")
	version    = flag.Bool("version", false, "Print version information")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	dryRun     = flag.Bool("dry-run", false, "Run without publishing sync results")
	once       = flag.Bool("once", false, "Run a single full sync and exit")
)

// Version information - can be set at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	flag.Parse()

	if *version {
		printVersion()
		os.Exit(0)
	}

	app, err := NewApp(*configPath, *debug, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		exitCode := 0
		if err := app.RunOnce(ctx); err != nil {
			app.logger.Error("Sync failed", "error", err)
			exitCode = 1
		}
		app.Stop(context.Background())
		os.Exit(exitCode)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		app.logger.Error("Failed to start application", "error", err)
		os.Exit(1)
	}

	app.logger.Info("Assignment sync started successfully")

	sig := <-sigChan
	app.logger.Info("Received shutdown signal", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		app.logger.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}

	app.logger.Info("Assignment sync stopped gracefully")
}

// App holds the main application components
type App struct {
	config    *config.Config
	logger    *slog.Logger
	engine    *syncengine.Engine
	state     *state.Store
	publisher *nats.Publisher
	scheduler *cron.Cron
	dryRun    bool
}

// NewApp creates a new application instance
func NewApp(configPath string, debugMode, dryRun bool) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.Logging, debugMode)
	logger.Info("Starting assignment sync",
		"version", Version,
		"commit", GitCommit,
		"build_time", BuildTime,
		"config_path", configPath,
		"dry_run", dryRun)

	source := remote.NewClient(&remote.Config{
		BaseURL: cfg.Remote.BaseURL,
		Token:   cfg.Remote.Token,
		Timeout: cfg.Remote.Timeout,
	}, logger)

	assignmentCache := cache.NewStore(source.FetchAssignments, cfg.Cache.TTL, logger)

	calendar, err := device.DefaultFactory().Create(cfg.Device.Type, &device.Config{
		CalendarID: cfg.Device.CalendarID,
		Path:       cfg.Device.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s device calendar: %w", cfg.Device.Type, err)
	}

	stateStore, err := state.Open(cfg.State.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	settingsStore := settings.NewFileStore(cfg.Settings.Path, logger)
	gate, err := syncengine.NewGate(calendar, settingsStore, logger)
	if err != nil {
		stateStore.Close()
		return nil, fmt.Errorf("failed to create permission gate: %w", err)
	}

	coordinator := syncengine.NewCoordinator(assignmentCache, stateStore, calendar, gate, logger)
	engine := syncengine.NewEngine(assignmentCache, stateStore, coordinator, gate, logger)

	var publisher *nats.Publisher
	if cfg.NATS.URL != "" && !dryRun {
		natsConfig := nats.DefaultConfig()
		natsConfig.URL = cfg.NATS.URL
		natsConfig.Subject = cfg.NATS.Subject
		publisher, err = nats.NewPublisher(natsConfig, logger)
		if err != nil {
			stateStore.Close()
			return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
	} else if dryRun {
		logger.Info("Running in dry-run mode - sync results will not be published")
	}

	return &App{
		config:    cfg,
		logger:    logger,
		engine:    engine,
		state:     stateStore,
		publisher: publisher,
		dryRun:    dryRun,
	}, nil
}

// RunOnce performs a single full sync across all courses and reports the
// result.
func (a *App) RunOnce(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	result, err := a.engine.PerformFullSync(runCtx, models.ScopeAll)
	if err != nil {
		return err
	}

	a.publishResult(ctx, result)

	if result.HasErrors() {
		return fmt.Errorf("sync completed with %d errors", len(result.Errors))
	}
	return nil
}

// Start starts the application services
func (a *App) Start(ctx context.Context) error {
	userSettings := a.engine.GetSettings()
	if !userSettings.AutoSync {
		a.logger.Info("Auto-sync disabled, waiting for manual runs only")
		return nil
	}

	interval := userSettings.AutoSyncInterval
	if interval <= 0 {
		interval = models.DefaultSyncSettings().AutoSyncInterval
	}

	a.scheduler = cron.New()
	_, err := a.scheduler.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		a.runScheduledSync(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule auto-sync: %w", err)
	}
	a.scheduler.Start()

	a.logger.Info("Auto-sync scheduled", "interval", interval)
	return nil
}

// runScheduledSync runs one incremental sync tick. A tick that lands while a
// run is still active is skipped, not queued.
func (a *App) runScheduledSync(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()

	result, err := a.engine.PerformIncrementalSync(runCtx, models.ScopeAll)
	if err != nil {
		if errors.Is(err, syncengine.ErrSyncInProgress) {
			a.logger.Debug("Auto-sync tick skipped, sync already running")
			return
		}
		a.logger.Error("Auto-sync failed", "error", err)
		return
	}

	a.publishResult(ctx, result)
}

// publishResult sends a sync result downstream, or logs it in dry-run mode.
func (a *App) publishResult(ctx context.Context, result *models.SyncResult) {
	if a.publisher == nil {
		a.logger.Info("Sync result",
			"mode", result.Mode,
			"scope", result.Scope.Key(),
			"created", result.Created,
			"updated", result.Updated,
			"deleted", result.Deleted,
			"skipped", result.Skipped,
			"errors", len(result.Errors),
			"duration", result.Duration)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.publisher.PublishResult(publishCtx, result); err != nil {
		a.logger.Error("Failed to publish sync result", "error", err)
	}
}

// Stop gracefully stops the application services
func (a *App) Stop(ctx context.Context) error {
	a.logger.Info("Shutting down application")

	if a.scheduler != nil {
		stopCtx := a.scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			a.logger.Warn("Shutdown timed out waiting for running sync")
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Error closing NATS publisher", "error", err)
		}
	}

	if err := a.state.Close(); err != nil {
		a.logger.Error("Error closing state store", "error", err)
	}

	return nil
}

// setupLogger configures the application logger
func setupLogger(cfg config.LoggingConfig, debugMode bool) *slog.Logger {
	var level slog.Level

	// Override config level if debug mode is enabled
	if debugMode {
		level = slog.LevelDebug
	} else {
		switch cfg.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Assignment Sync %s\n", Version)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Build Time: %s\n", BuildTime)
}
