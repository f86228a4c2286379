package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reelcache/reelcache/internal/bytesize"
	"github.com/reelcache/reelcache/pkg/catalog"
)

// yamlSafePath converts a filesystem path to a YAML-safe representation.
// On Windows, backslashes in double-quoted YAML strings are interpreted as
// escape sequences, causing parse errors.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_AppliesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
logging:
  level: "INFO"

cache:
  path: "`+yamlSafePath(tmpDir)+`/media"

database:
  type: sqlite
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Cache.MaxSize != 50*bytesize.GB {
		t.Errorf("Expected default max_size 50GB, got %v", cfg.Cache.MaxSize)
	}
	if cfg.Cache.MaxFiles != 500 {
		t.Errorf("Expected default max_files 500, got %d", cfg.Cache.MaxFiles)
	}
	if cfg.Cache.EvictBatch != 10 {
		t.Errorf("Expected default evict_batch 10, got %d", cfg.Cache.EvictBatch)
	}
	if cfg.Acquire.LockTimeout != 30*time.Second {
		t.Errorf("Expected default lock_timeout 30s, got %v", cfg.Acquire.LockTimeout)
	}
	if cfg.Acquire.DownloadTimeout != 5*time.Minute {
		t.Errorf("Expected default download_timeout 5m, got %v", cfg.Acquire.DownloadTimeout)
	}
	if cfg.Resolver.Mode != "template" {
		t.Errorf("Expected default resolver mode 'template', got %q", cfg.Resolver.Mode)
	}
}

func TestLoad_ParsesHumanReadableValues(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := writeConfig(t, `
cache:
  path: "`+yamlSafePath(tmpDir)+`/media"
  max_size: 10Gi
  max_files: 42
  janitor_interval: 2h

acquire:
  lock_timeout: 5s
  download_timeout: 3m
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Cache.MaxSize != 10*bytesize.GiB {
		t.Errorf("Expected max_size 10Gi, got %v", cfg.Cache.MaxSize)
	}
	if cfg.Cache.MaxFiles != 42 {
		t.Errorf("Expected max_files 42, got %d", cfg.Cache.MaxFiles)
	}
	if cfg.Cache.JanitorInterval != 2*time.Hour {
		t.Errorf("Expected janitor_interval 2h, got %v", cfg.Cache.JanitorInterval)
	}
	if cfg.Acquire.LockTimeout != 5*time.Second {
		t.Errorf("Expected lock_timeout 5s, got %v", cfg.Acquire.LockTimeout)
	}
	if cfg.Acquire.DownloadTimeout != 3*time.Minute {
		t.Errorf("Expected download_timeout 3m, got %v", cfg.Acquire.DownloadTimeout)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config so the
	// daemon can run without one for quick testing.
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Database.Type != catalog.DatabaseTypeSQLite {
		t.Errorf("Expected sqlite default, got %q", cfg.Database.Type)
	}
	if cfg.Cache.Path == "" {
		t.Error("Expected default cache path to be set")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "bad log level",
			content: `
logging:
  level: "LOUD"
cache:
  path: "/tmp/media"
`,
		},
		{
			name: "http resolver without endpoint",
			content: `
cache:
  path: "/tmp/media"
resolver:
  mode: http
`,
		},
		{
			name: "lock timeout above download timeout",
			content: `
cache:
  path: "/tmp/media"
acquire:
  lock_timeout: 10m
  download_timeout: 1m
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			if _, err := Load(configPath); err == nil {
				t.Fatal("Expected validation error")
			}
		})
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Cache.Path = "/srv/reelcache/media"
	cfg.Cache.MaxFiles = 123

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Saved config missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected permissions 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Cache.Path != cfg.Cache.Path {
		t.Errorf("Expected cache path %q, got %q", cfg.Cache.Path, loaded.Cache.Path)
	}
	if loaded.Cache.MaxFiles != 123 {
		t.Errorf("Expected max_files 123, got %d", loaded.Cache.MaxFiles)
	}
}
