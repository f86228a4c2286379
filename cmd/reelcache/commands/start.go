package commands

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelcache/reelcache/internal/logger"
	"github.com/reelcache/reelcache/internal/telemetry"
	"github.com/reelcache/reelcache/pkg/acquire"
	"github.com/reelcache/reelcache/pkg/api"
	"github.com/reelcache/reelcache/pkg/api/handlers"
	"github.com/reelcache/reelcache/pkg/catalog"
	"github.com/reelcache/reelcache/pkg/config"
	"github.com/reelcache/reelcache/pkg/fetch"
	"github.com/reelcache/reelcache/pkg/metrics"
	"github.com/reelcache/reelcache/pkg/resolve"
	"github.com/reelcache/reelcache/pkg/store"
	"github.com/spf13/cobra"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reelcache server",
	Long: `Start the reelcache server with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/reelcache/config.yaml.

Examples:
  # Start in background (default)
  reelcache start

  # Start in foreground
  reelcache start --foreground

  # Start with custom config file
  reelcache start --config /etc/reelcache/config.yaml

  # Start with environment variable overrides
  REELCACHE_LOGGING_LEVEL=DEBUG reelcache start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/reelcache/reelcache.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/reelcache/reelcache.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	// Handle daemon mode (background)
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "reelcache",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "reelcache",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	fmt.Println("ReelCache - On-demand media acquisition cache")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	// Initialize metrics FIRST (before creating the store that records them).
	// This ensures metrics.IsEnabled() returns true when the store is created.
	if cfg.Metrics.Enabled {
		metrics.Init()
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the catalog database
	cat, err := catalog.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logger.Error("catalog close error", "error", err)
		}
	}()
	logger.Info("Catalog opened", "type", cfg.Database.Type)

	// Per-content locks shared between the coordinator and eviction
	locks := acquire.NewLockTable()

	// Content store
	st, err := store.New(store.Config{
		Root:            cfg.Cache.Path,
		MaxBytes:        cfg.Cache.MaxSize,
		MaxFiles:        cfg.Cache.MaxFiles,
		EvictBatch:      cfg.Cache.EvictBatch,
		JanitorInterval: cfg.Cache.JanitorInterval,
	}, cat, locks)
	if err != nil {
		return fmt.Errorf("failed to initialize content store: %w", err)
	}
	logger.Info("Content store ready",
		"path", cfg.Cache.Path,
		"max_size", cfg.Cache.MaxSize.String(),
		"max_files", cfg.Cache.MaxFiles)

	// Acquisition coordinator
	coordinator := acquire.NewCoordinator(cat, st, locks, acquire.Options{
		LockTimeout:     cfg.Acquire.LockTimeout,
		DownloadTimeout: cfg.Acquire.DownloadTimeout,
	})

	// Resolver maps content ids to remote sources
	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	logger.Info("Resolver configured", "mode", cfg.Resolver.Mode)

	// Fetchers download resolved locators into the store temp dir
	httpFetcher := fetch.NewHTTPFetcher(st.TempDir(), cfg.Acquire.DownloadTimeout)
	var s3Fetcher *fetch.S3Fetcher
	if cfg.Fetcher.S3.Enabled {
		s3Fetcher, err = fetch.NewS3Fetcher(ctx, fetch.S3Config{
			Region:         cfg.Fetcher.S3.Region,
			Endpoint:       cfg.Fetcher.S3.Endpoint,
			AccessKey:      cfg.Fetcher.S3.AccessKey,
			SecretKey:      cfg.Fetcher.S3.SecretKey,
			ForcePathStyle: cfg.Fetcher.S3.ForcePathStyle,
		}, st.TempDir(), cfg.Acquire.DownloadTimeout)
		if err != nil {
			return fmt.Errorf("failed to initialize S3 fetcher: %w", err)
		}
		logger.Info("S3 fetcher enabled", "region", cfg.Fetcher.S3.Region, "endpoint", cfg.Fetcher.S3.Endpoint)
	}

	// HTTP surface
	cacheHandler := handlers.NewCacheHandler(cat, st, coordinator, resolver, httpFetcher, s3Fetcher)
	healthHandler := handlers.NewHealthHandler(cat, st)
	apiServer := api.NewServer(cfg.API, cacheHandler, healthHandler)
	logger.Info("API server configured", "port", apiServer.Port())

	// Write PID file if specified
	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	// Background capacity janitor
	go st.RunJanitor(ctx)

	// Standalone metrics endpoint
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Port); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Start API server in background. With the API disabled only the
	// janitor and metrics endpoint run; serverDone then stays silent until
	// shutdown.
	serverDone := make(chan error, 1)
	if cfg.API.IsEnabled() {
		go func() {
			serverDone <- apiServer.Start(ctx)
		}()
	} else {
		logger.Info("API server disabled")
		go func() {
			<-ctx.Done()
			serverDone <- nil
		}()
	}

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		// Wait for server to shut down gracefully
		select {
		case err := <-serverDone:
			if err != nil {
				logger.Error("Server shutdown error", "error", err)
				return err
			}
			logger.Info("Server stopped gracefully")
		case <-time.After(cfg.ShutdownTimeout):
			logger.Error("Server shutdown timed out", "timeout", cfg.ShutdownTimeout.String())
			return fmt.Errorf("shutdown timed out after %s", cfg.ShutdownTimeout)
		}

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}

// buildResolver constructs the resolver selected by configuration.
func buildResolver(cfg *config.Config) (resolve.Resolver, error) {
	switch cfg.Resolver.Mode {
	case "http":
		return resolve.NewHTTPResolver(cfg.Resolver.Endpoint, cfg.Resolver.Timeout), nil
	case "template", "":
		return resolve.NewTemplateResolver(
			cfg.Resolver.Template,
			cfg.Resolver.Quality,
			cfg.Resolver.Format,
			cfg.Resolver.Priority,
		), nil
	default:
		return nil, fmt.Errorf("unknown resolver mode: %s", cfg.Resolver.Mode)
	}
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// startDaemon starts the server as a background daemon process.
func startDaemon() error {
	stateDir := GetDefaultStateDir()

	// Create state directory if it doesn't exist
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Set default PID file if not specified
	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check if already running
	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				// Check if process is still running
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("reelcache is already running (PID %d)\nUse 'reelcache stop' to stop the running instance", pid)
					}
				}
			}
		}
		// Stale PID file, remove it
		_ = os.Remove(pidPath)
	}

	// Set default log file if not specified
	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
	}

	// Get the executable path
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// Build arguments for the daemon process
	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	// Create the daemon process
	daemon := exec.Command(executable, daemonArgs...)

	// Open log file for stdout/stderr
	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	daemon.Stdout = logFileHandle
	daemon.Stderr = logFileHandle

	// Detach from parent process
	daemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}

	// Start the daemon
	if err := daemon.Start(); err != nil {
		_ = logFileHandle.Close()
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	_ = logFileHandle.Close()

	fmt.Printf("reelcache started in background (PID %d)\n", daemon.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'reelcache stop' to stop the server")
	fmt.Println("Use 'reelcache status' to check server status")

	return nil
}
