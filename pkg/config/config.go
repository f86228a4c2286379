// Package config loads, validates and persists the daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/pkg/api"
	"github.com/reelcache/reelcache/pkg/catalog"
)

// Config represents the reelcache daemon configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (REELCACHE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures the catalog database (SQLite or PostgreSQL)
	Database catalog.Config `mapstructure:"database" yaml:"database"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains the cache HTTP server configuration
	API api.APIConfig `mapstructure:"api" yaml:"api"`

	// Cache specifies the content store location and capacity limits
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Acquire tunes the acquisition coordinator timeouts
	Acquire AcquireConfig `mapstructure:"acquire" yaml:"acquire"`

	// Resolver configures how content ids map to remote sources
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`

	// Fetcher configures the S3 download backend. HTTP(S) downloads need no
	// configuration.
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// CacheConfig specifies the content store location and capacity limits.
type CacheConfig struct {
	// Path is the content store root directory (required)
	// Example: /var/lib/reelcache/media
	Path string `mapstructure:"path" validate:"required" yaml:"path"`

	// MaxSize caps the total size of stored media.
	// Supports human-readable formats: "50GB", "512MB", "10Gi". 0 disables
	// the size limit.
	// Default: 50GB
	MaxSize bytesize.ByteSize `mapstructure:"max_size" yaml:"max_size,omitempty"`

	// MaxFiles caps the number of stored files. 0 disables the count limit.
	// Default: 500
	MaxFiles int `mapstructure:"max_files" validate:"omitempty,min=0" yaml:"max_files"`

	// EvictBatch is how many eviction candidates are pulled per round.
	// Default: 10
	EvictBatch int `mapstructure:"evict_batch" validate:"omitempty,min=1" yaml:"evict_batch"`

	// JanitorInterval is the period of the background capacity check.
	// Default: 4h
	JanitorInterval time.Duration `mapstructure:"janitor_interval" yaml:"janitor_interval"`
}

// AcquireConfig tunes the acquisition coordinator.
type AcquireConfig struct {
	// LockTimeout bounds how long a request waits for another in-flight
	// download of the same content before failing.
	// Default: 30s
	LockTimeout time.Duration `mapstructure:"lock_timeout" yaml:"lock_timeout"`

	// DownloadTimeout bounds a single download end to end.
	// Default: 5m
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
}

// ResolverConfig configures how content ids map to remote sources.
type ResolverConfig struct {
	// Mode selects the resolver implementation.
	// Valid values: template, http
	// Default: template
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=template http" yaml:"mode"`

	// Endpoint is the discovery service base URL (http mode only)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Timeout bounds one discovery request (http mode only)
	// Default: 10s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// Template is the locator URL template (template mode only).
	// Placeholders: {content_id}, {external_id}, {media_kind}
	// Default: "https://localhost/media/{media_kind}/{external_id}.mp4"
	Template string `mapstructure:"template" yaml:"template"`

	// Quality and Format are recorded verbatim on template resolutions
	Quality string `mapstructure:"quality" yaml:"quality"`
	Format  string `mapstructure:"format" yaml:"format"`

	// Priority is the eviction tier assigned to template resolutions.
	// Default: 1
	Priority int `mapstructure:"priority" validate:"omitempty,min=1" yaml:"priority"`
}

// FetcherConfig configures the optional S3 download backend.
type FetcherConfig struct {
	S3 S3FetcherConfig `mapstructure:"s3" yaml:"s3"`
}

// S3FetcherConfig enables downloads from s3:// locators.
type S3FetcherConfig struct {
	// Enabled controls whether the S3 fetcher is constructed at startup
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Region is the AWS region (optional, uses SDK default if empty)
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// AccessKey and SecretKey select static credentials; when empty the SDK
	// default credential chain applies
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (REELCACHE_*)
//  2. Configuration file
//  3. Default values
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages. It checks if the
// config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  reelcache init\n\n"+
				"Or specify a custom config file:\n"+
				"  reelcache <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  reelcache init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may carry S3 credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the REELCACHE_ prefix and underscores.
	// Example: REELCACHE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("REELCACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/reelcache/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		// Explicit config path that does not exist
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use human-readable sizes like "50GB", "512Mi" or plain
// numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "reelcache")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "reelcache")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
