package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mediacore/hlsengine/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing mediacoreserver configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

Configuration can be set via:
  - Config file (mediacore.yaml, /etc/mediacore/mediacore.yaml, ~/.mediacore/mediacore.yaml)
  - Environment variables (MEDIACORE_SERVER_PORT, MEDIACORE_DATABASE_DSN, etc.)
  - Command-line flags (for some options)

Environment variables use the MEDIACORE_ prefix and underscores for nesting.
Example: server.port -> MEDIACORE_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# mediacoreserver Configuration File")
	fmt.Println("# ==================================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   MEDIACORE_SERVER_HOST, MEDIACORE_SERVER_PORT")
	fmt.Println("#   MEDIACORE_DATABASE_DRIVER, MEDIACORE_DATABASE_DSN")
	fmt.Println("#   MEDIACORE_STORAGE_MEDIA_ROOT")
	fmt.Println("#   MEDIACORE_CACHE_CAPACITY, MEDIACORE_CACHE_IDLE_TTL")
	fmt.Println("#   MEDIACORE_LOGGING_LEVEL, MEDIACORE_LOGGING_FORMAT")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
