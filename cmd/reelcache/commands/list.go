package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/reelcache/reelcache/internal/cli/output"
	"github.com/reelcache/reelcache/pkg/api/handlers"
	"github.com/spf13/cobra"
)

var (
	listOutput  string
	listAPIPort int
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached content",
	Long: `List the active entries in the cache catalog, most recently
accessed first.

Examples:
  # List cached content
  reelcache list

  # Page through a large catalog
  reelcache list --limit 100 --offset 200

  # Output as JSON
  reelcache list --output json`,
	RunE: runList,
}

func init() {
	listCmd.Flags().IntVar(&listAPIPort, "api-port", 8080, "API server port")
	listCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum number of entries to return")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of entries to skip")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// listEnvelope mirrors the cache list endpoint response for decoding.
type listEnvelope struct {
	Status string            `json:"status"`
	Error  string            `json:"error"`
	Data   handlers.ListData `json:"data"`
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(listOutput)
	if err != nil {
		return err
	}

	var list listEnvelope
	path := fmt.Sprintf("/cache/list?limit=%d&offset=%d", listLimit, listOffset)
	if err := apiGet(listAPIPort, path, &list); err != nil {
		return fmt.Errorf("failed to reach server: %w\n\nIs the server running? Try 'reelcache status'", err)
	}
	if list.Status != "ok" {
		return fmt.Errorf("server error: %s", list.Error)
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, list.Data)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, list.Data)
	default:
		return printListTable(list.Data)
	}
}

func printListTable(data handlers.ListData) error {
	if len(data.Entries) == 0 {
		fmt.Println("No cached content")
		return nil
	}

	table := output.NewTableData("CONTENT ID", "TITLE", "SIZE (MB)", "QUALITY", "ACCESSES", "LAST ACCESSED")
	for _, e := range data.Entries {
		table.AddRow(
			e.ContentID,
			e.Title,
			fmt.Sprintf("%.1f", e.FileSizeMB),
			e.Quality,
			fmt.Sprintf("%d", e.AccessCount),
			e.LastAccessed.Local().Format(time.RFC3339),
		)
	}

	if err := output.PrintTable(os.Stdout, table); err != nil {
		return err
	}

	fmt.Printf("\nShowing %d of %d entries\n", len(data.Entries), data.Total)
	return nil
}
