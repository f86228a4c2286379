package commands

import (
	"fmt"

	"github.com/reelcache/reelcache/pkg/api/handlers"
	"github.com/spf13/cobra"
)

var cleanupAPIPort int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run a cache eviction pass now",
	Long: `Ask the server to run one capacity pass immediately.

A store under its capacity thresholds evicts nothing; over threshold the
least valuable entries are removed until usage drops back under it.

Examples:
  # Trigger a cleanup
  reelcache cleanup

  # Against a custom API port
  reelcache cleanup --api-port 9080`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupAPIPort, "api-port", 8080, "API server port")
}

// cleanupEnvelope mirrors the cleanup endpoint response for decoding.
type cleanupEnvelope struct {
	Status string               `json:"status"`
	Error  string               `json:"error"`
	Data   handlers.CleanupData `json:"data"`
}

func runCleanup(cmd *cobra.Command, args []string) error {
	var result cleanupEnvelope
	if err := apiPost(cleanupAPIPort, "/cache/cleanup", &result); err != nil {
		return fmt.Errorf("failed to reach server: %w\n\nIs the server running? Try 'reelcache status'", err)
	}
	if result.Status != "ok" {
		return fmt.Errorf("server error: %s", result.Error)
	}

	if result.Data.Evicted == 0 {
		fmt.Println("Cache is within capacity limits, nothing evicted")
	} else {
		fmt.Printf("Evicted %d entries\n", result.Data.Evicted)
	}
	return nil
}
