package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/adhil-payingalil/resumatch/internal/common"
	"github.com/adhil-payingalil/resumatch/internal/engine"
	"github.com/adhil-payingalil/resumatch/internal/models"
	"github.com/adhil-payingalil/resumatch/internal/services/llm"
	"github.com/adhil-payingalil/resumatch/internal/storage"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
	maxJobs      = flag.Int("max-jobs", -1, "Cap on jobs processed this run (overrides config)")
	forceFlag    = flag.Bool("force", false, "Reprocess jobs that already have records")
	onceFlag     = flag.Bool("once", false, "Run a single matching pass even when a schedule is configured")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Resumatch version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, statErr := os.Stat("resumatch.toml"); statErr == nil {
			configFiles = append(configFiles, "resumatch.toml")
		} else if _, statErr := os.Stat("deployments/local/resumatch.toml"); statErr == nil {
			configFiles = append(configFiles, "deployments/local/resumatch.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// CLI overrides
	if *maxJobs >= 0 {
		config.Matching.MaxJobs = *maxJobs
	}
	if *forceFlag {
		config.Matching.ForceReprocess = true
	}

	logger = common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("version", common.GetFullVersion()).
		Str("environment", config.Environment).
		Str("db_path", config.Storage.Badger.Path).
		Str("llm_model", config.Matching.LLMModel).
		Msg("Resumatch starting")

	if err := run(); err != nil {
		logger.Fatal().Err(err).Msg("Resumatch exited with error")
		os.Exit(1)
	}
}

func run() error {
	// Cancelled on SIGINT/SIGTERM; workers drain and a final checkpoint is
	// written before exit.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storageManager, err := storage.NewStorageManager(logger, config)
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	defer func() {
		if err := storageManager.Close(); err != nil {
			logger.Warn().Err(err).Msg("Storage close failed")
		}
	}()

	llmService := llm.NewProviderFactory(&config.Gemini, &config.Claude, &config.LLM, logger)
	defer func() {
		if err := llmService.Close(); err != nil {
			logger.Warn().Err(err).Msg("LLM service close failed")
		}
	}()

	services := engine.Services{
		Storage: storageManager,
		LLM:     llmService,
		Clock:   common.SystemClock{},
	}

	if config.Schedule.Enabled && !*onceFlag {
		return runScheduled(ctx, services)
	}

	return runOnce(ctx, services)
}

// runOnce executes a single matching pass and prints its summary.
func runOnce(ctx context.Context, services engine.Services) error {
	eng, err := engine.New(config, services, logger)
	if err != nil {
		return err
	}

	summary, runErr := eng.Run(ctx)
	if summary != nil {
		printSummary(summary)
	}
	return runErr
}

// runScheduled runs matching passes on the configured cron expression
// until the context is cancelled. Overlapping runs are skipped.
func runScheduled(ctx context.Context, services engine.Services) error {
	scheduler := cron.New()

	running := make(chan struct{}, 1)
	_, err := scheduler.AddFunc(config.Schedule.Cron, func() {
		select {
		case running <- struct{}{}:
			defer func() { <-running }()
		default:
			logger.Warn().Msg("Previous matching run still in progress, skipping scheduled run")
			return
		}

		if err := runOnce(ctx, services); err != nil {
			logger.Error().Err(err).Msg("Scheduled matching run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", config.Schedule.Cron, err)
	}

	logger.Info().Str("cron", config.Schedule.Cron).Msg("Scheduler started")
	scheduler.Start()

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, stopping scheduler")

	// Wait for a running pass to finish its checkpoint.
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	running <- struct{}{}

	return nil
}

// printSummary writes the run summary to stdout as indented JSON so
// wrapper scripts can consume it.
func printSummary(summary *models.WorkflowSummary) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to render run summary")
		return
	}
	fmt.Println(string(data))
}
