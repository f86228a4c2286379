package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/reelcache/reelcache/internal/cli/prompt"
	"github.com/reelcache/reelcache/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample reelcache configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/reelcache/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  reelcache init

  # Initialize with custom path
  reelcache init --config /etc/reelcache/config.yaml

  # Force overwrite existing config
  reelcache init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		ok, err := prompt.Confirm(fmt.Sprintf("Configuration file %s already exists. Overwrite?", configPath), false)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				return nil
			}
			return err
		}
		if !ok {
			fmt.Println("Keeping existing configuration file")
			return nil
		}
	}

	if err := config.SaveConfig(config.GetDefaultConfig(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: reelcache start")
	fmt.Printf("  3. Or specify custom config: reelcache start --config %s\n", configPath)
	fmt.Println("\nNote:")
	fmt.Println("  The default resolver maps content ids onto a URL template.")
	fmt.Println("  Point resolver.endpoint at a discovery service and set")
	fmt.Println("  resolver.mode to \"http\" for dynamic source resolution.")

	return nil
}
