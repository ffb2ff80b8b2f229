package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"redditscheduler/internal/config"
	"redditscheduler/internal/constants"
	"redditscheduler/internal/database"
	"redditscheduler/internal/models"
	"redditscheduler/internal/privacy"
	"redditscheduler/internal/retry"
	"redditscheduler/internal/service"
	"redditscheduler/internal/timeutil"
	"redditscheduler/internal/tracing"
	"redditscheduler/pkg/media"
	"redditscheduler/pkg/reddit"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes post content)")
	configPath = flag.String("config", "", "Path to JSON configuration file; environment only when empty")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("reddit-scheduler %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting reddit-scheduler")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(logger, cfg.LogLevel, *verbose)
	if *verbose {
		logger.Info("Verbose logging enabled - post content will be logged")
	}
	logger.WithFields(configSummary(cfg)).Info("Configuration loaded")

	if *configPath != "" {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.OnConfigChange(func(next *models.Config) {
			applyLogLevel(logger, next.LogLevel, *verbose)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	zone, err := timeutil.LoadZone(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultTracingShutdownSec*time.Second)
		defer cancel()
		if err := tracingManager.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	images, err := media.NewHandler(media.Config{
		UploadDir:         cfg.Uploads.Dir,
		MaxUploadBytes:    int64(cfg.Uploads.MaxSizeMB) * constants.BytesPerMegabyte,
		AllowedExtensions: cfg.Uploads.AllowedExtensions,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize media handler: %w", err)
	}

	redditTimeout := cfg.Reddit.TimeoutSec
	if redditTimeout <= 0 {
		redditTimeout = constants.DefaultRedditTimeoutSec
	}
	redditClient := reddit.NewClientWithLogger(
		reddit.ConfigFromModel(cfg.Reddit),
		&http.Client{Timeout: time.Duration(redditTimeout) * time.Second},
		logger,
	)

	var flairs service.FlairLister
	if cfg.Reddit.ClientID != "" {
		flairs = redditClient
	}
	posts := service.NewPostService(db, flairs, zone, logger)

	ctx = service.WithVerbose(ctx, *verbose)

	var scheduler *service.Scheduler
	if cfg.Scheduler.Disabled {
		logger.Warn("Scheduler disabled by configuration, posts will not be submitted")
	} else {
		breaker := service.NewRedditBreaker(cfg.Reddit, logger)
		publisher := service.NewPublisher(redditClient, images, breaker, cfg.Scheduler.SubmitTimeout(), logger)
		scanner := service.NewScanner(db, publisher, logger)
		scheduler = service.NewScheduler(scanner, cfg.Scheduler.ScanInterval(), logger)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	var status SchedulerStatus
	if scheduler != nil {
		status = scheduler
	}
	server := NewServer(cfg, posts, db, images, status, logger)
	serverErrCh := make(chan error, constants.ServerErrorChanSz)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case runErr = <-serverErrCh:
		logger.Error(runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Failed to shutdown server gracefully")
		if runErr == nil {
			runErr = fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
	}

	// Stop waits for an in-flight scan so its status writes land before the store closes
	if scheduler != nil {
		scheduler.Stop()
	}

	logger.Info("Shutdown completed")
	return runErr
}

// openDatabase opens the store, retrying with exponential backoff
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoffConfig := retry.FromRetryConfig(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts

	backoff := retry.NewBackoff(backoffConfig).OnRetry(func(attempt int, delay time.Duration, err error) {
		logger.WithFields(logrus.Fields{
			service.LogFieldAttempt:   attempt,
			service.LogFieldDuration:  delay.Milliseconds(),
			service.LogFieldLastError: err.Error(),
		}).Warn("Database not ready, retrying")
	})

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path, &cfg.Database)
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// applyLogLevel sets the logger level. Debug output requires -verbose.
func applyLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	if configured == "" {
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

func configSummary(cfg *models.Config) logrus.Fields {
	fields := privacy.MaskSensitiveFields(map[string]interface{}{
		"client_id":     cfg.Reddit.ClientID,
		"client_secret": cfg.Reddit.ClientSecret,
		"username":      cfg.Reddit.Username,
		"auth_user":     cfg.Server.BasicAuthUser,
		"timezone":      cfg.Timezone,
		"database":      cfg.Database.Path,
		"upload_dir":    cfg.Uploads.Dir,
		"port":          cfg.Server.Port,
		"scan_interval": cfg.Scheduler.ScanInterval().String(),
		"scheduler_on":  !cfg.Scheduler.Disabled,
	})
	return logrus.Fields(fields)
}
