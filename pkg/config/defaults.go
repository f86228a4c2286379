package config

import (
	"strings"
	"time"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/pkg/catalog"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values (0, "", false, nil) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyShutdownTimeoutDefaults(cfg)
	applyDatabaseDefaults(&cfg.Database)
	applyMetricsDefaults(&cfg.Metrics)
	applyCacheDefaults(&cfg.Cache)
	applyAcquireDefaults(&cfg.Acquire)
	applyResolverDefaults(&cfg.Resolver)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	// Enabled defaults to false (opt-in for telemetry)

	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

func applyDatabaseDefaults(cfg *catalog.Config) {
	cfg.ApplyDefaults()
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false; port defaults only matter when enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyCacheDefaults sets content store defaults.
// Cache path has no default; it is required and must be configured.
func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxSize == 0 {
		cfg.MaxSize = 50 * bytesize.GB
	}
	if cfg.MaxFiles == 0 {
		cfg.MaxFiles = 500
	}
	if cfg.EvictBatch == 0 {
		cfg.EvictBatch = 10
	}
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 4 * time.Hour
	}
}

func applyAcquireDefaults(cfg *AcquireConfig) {
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 30 * time.Second
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 5 * time.Minute
	}
}

func applyResolverDefaults(cfg *ResolverConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "template"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Template == "" {
		cfg.Template = "https://localhost/media/{media_kind}/{external_id}.mp4"
	}
	if cfg.Quality == "" {
		cfg.Quality = "720p"
	}
	if cfg.Format == "" {
		cfg.Format = "mp4"
	}
	if cfg.Priority == 0 {
		cfg.Priority = 1
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for generating sample configuration files, testing and
// documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: catalog.Config{
			Type: catalog.DatabaseTypeSQLite, // Default to SQLite for single-node
		},
		Cache: CacheConfig{
			Path: "/var/lib/reelcache/media",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
