package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/reelcache/reelcache/internal/cli/output"
	"github.com/reelcache/reelcache/pkg/api/handlers"
	"github.com/spf13/cobra"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the reelcache server.

This command checks the server health by calling the health endpoint
and displays status, uptime and cache usage information.

Examples:
  # Check status (uses default settings)
  reelcache status

  # Check status with custom API port
  reelcache status --api-port 9080

  # Output as JSON
  reelcache status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/reelcache/reelcache.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 8080, "API server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running   bool   `json:"running" yaml:"running"`
	PID       int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message   string `json:"message" yaml:"message"`
	StartedAt string `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Uptime    string `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	Healthy   bool   `json:"healthy" yaml:"healthy"`

	FileCount      int     `json:"file_count,omitempty" yaml:"file_count,omitempty"`
	UsedGB         float64 `json:"used_gb,omitempty" yaml:"used_gb,omitempty"`
	LimitGB        float64 `json:"limit_gb,omitempty" yaml:"limit_gb,omitempty"`
	CatalogEntries int64   `json:"catalog_entries,omitempty" yaml:"catalog_entries,omitempty"`
}

// healthEnvelope mirrors the health endpoint response for decoding.
type healthEnvelope struct {
	Status string              `json:"status"`
	Error  string              `json:"error"`
	Data   handlers.HealthData `json:"data"`
}

// statusEnvelope mirrors the cache status endpoint response for decoding.
type statusEnvelope struct {
	Status string              `json:"status"`
	Error  string              `json:"error"`
	Data   handlers.StatusData `json:"data"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{
		Running: false,
		Healthy: false,
		Message: "Server is not running",
	}

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	pidData, err := os.ReadFile(pidPath)
	if err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
		if err == nil {
			// Check if process is running
			process, err := os.FindProcess(pid)
			if err == nil {
				// On Unix, FindProcess always succeeds, we need to send signal 0 to check
				err = process.Signal(syscall.Signal(0))
				if err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	// Check health endpoint (works for both daemon and foreground mode)
	var health healthEnvelope
	if err := apiGet(statusAPIPort, "/health", &health); err == nil {
		status.Running = true
		status.Healthy = health.Status == "healthy"
		status.StartedAt = health.Data.StartedAt
		status.Uptime = health.Data.Uptime
		if status.Healthy {
			status.Message = "Server is running and healthy"
		} else {
			status.Message = fmt.Sprintf("Server is running but unhealthy: %s", health.Error)
		}

		// Cache usage is informational; skip it silently on failure.
		var cacheStatus statusEnvelope
		if err := apiGet(statusAPIPort, "/cache/status", &cacheStatus); err == nil && cacheStatus.Status == "ok" {
			status.FileCount = cacheStatus.Data.FileCount
			status.UsedGB = cacheStatus.Data.UsedGB
			status.LimitGB = cacheStatus.Data.LimitGB
			status.CatalogEntries = cacheStatus.Data.Catalog.Count
		}
	} else if status.Running {
		// PID file says running but health check failed
		status.Message = "Server process exists but health check failed"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		printStatusTable(status)
	}

	return nil
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("ReelCache Server Status")
	fmt.Println("=======================")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:     \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:     \033[33m● Running (unhealthy)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:        %d\n", status.PID)
		}
		if status.StartedAt != "" {
			fmt.Printf("  Started:    %s\n", status.StartedAt)
		}
		if status.Uptime != "" {
			fmt.Printf("  Uptime:     %s\n", status.Uptime)
		}
		if status.Healthy {
			fmt.Println()
			fmt.Printf("  Files:      %d\n", status.FileCount)
			if status.LimitGB > 0 {
				fmt.Printf("  Usage:      %.2f GB / %.2f GB\n", status.UsedGB, status.LimitGB)
			} else {
				fmt.Printf("  Usage:      %.2f GB\n", status.UsedGB)
			}
			fmt.Printf("  Catalog:    %d active entries\n", status.CatalogEntries)
		}
	} else {
		fmt.Printf("  Status:     \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
