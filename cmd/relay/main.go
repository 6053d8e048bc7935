// Gray Logic Relay - pull-based command/response relay.
//
// Devices that cannot accept inbound connections (browser extensions,
// agents behind NAT) register with the relay, poll it for commands and post
// their responses back. Controllers address a device by its six-character
// code.
//
// Usage:
//
//	relay serve -c configs/config.yaml   # Run the HTTP API and the sweeper
//	relay migrate [--down]               # Apply or roll back SQLite migrations
//	relay version                        # Show version info
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// rootCmd shows help; the work is done by subcommands.
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Pull-based command/response relay",
	Long: `Gray Logic Relay queues commands for devices that poll for work and
holds their responses until a controller reads them.

Devices:
  POST /api/v1/devices/register        register and receive a code
  GET  /api/v1/devices/{id}/commands   poll for pending commands
  POST /api/v1/devices/{id}/responses  post a response

Controllers:
  POST /api/v1/commands                send a command to a code
  GET  /api/v1/responses/{code}        read responses`,
	SilenceUsage: true,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "relay %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (default $RELAY_CONFIG or "+defaultConfigPath+")")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		// Cobra already prints the error
		os.Exit(1)
	}
}

// configPath resolves the config file: the --config flag, then
// RELAY_CONFIG, then the default. explicit is false only for the default.
func configPath(cmd *cobra.Command) (path string, explicit bool) {
	if flag, _ := cmd.Flags().GetString("config"); flag != "" {
		return flag, true
	}
	if env := os.Getenv("RELAY_CONFIG"); env != "" {
		return env, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration at path. A missing file at the default
// location falls back to built-in defaults; a missing explicit file is an
// error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if explicit || !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg = config.Default()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating default config: %w", err)
	}
	return cfg, nil
}
