// Package main is the entry point for the statestore CLI.
//
// Usage:
//
//	statestore serve [-c config.yaml]     # Start the API server
//	statestore validate [-c config.yaml]  # Validate configuration
//	statestore version                    # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vyrodovalexey/statestore/internal/config"
	"github.com/vyrodovalexey/statestore/internal/handler"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd shows help; the work happens in subcommands.
var rootCmd = &cobra.Command{
	Use:   "statestore",
	Short: "Async state stores behind a REST and WebSocket API",
	Long: `statestore serves a counter, a todo list, a persisted session and an
asynchronous user store whose list, create and delete operations run
against a simulated backend with pending, fulfilled and rejected phases.

Every state transition is traced to the log, exported as Prometheus
metrics and streamed to WebSocket clients on /ws.

Configuration comes from defaults, an optional YAML file and APP_*
environment variables, in increasing priority.`,
	SilenceUsage: true,
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "statestore %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	handler.Version = version

	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

// loadConfig loads configuration from the -c flag, falling back to
// APP_CONFIG_FILE.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}
