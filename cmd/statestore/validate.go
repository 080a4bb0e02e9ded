package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// validateCmd validates configuration without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Resolve and validate the configuration without starting the server.

The file given with -c (or $APP_CONFIG_FILE) is overlaid with APP_*
environment variables exactly as serve would do.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  statestore validate -c statestore.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (default $APP_CONFIG_FILE)")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Address:        %s\n", cfg.Address())
	fmt.Fprintf(out, "  Auth mode:      %s\n", cfg.AuthMode)
	fmt.Fprintf(out, "  CORS origins:   %s\n", strings.Join(cfg.CORSAllowedOrigins, ", "))
	fmt.Fprintf(out, "  Persistence:    %s\n", persistSummary(cfg.Persist.Backend, cfg.Persist.Path))
	fmt.Fprintf(out, "  Overlap policy: %s\n", cfg.OverlapPolicy)
	fmt.Fprintf(out, "  Simulator:      list %s, create %s, delete %s, failure rate %.2f\n",
		cfg.Simulator.ListLatency, cfg.Simulator.CreateLatency, cfg.Simulator.DeleteLatency,
		cfg.Simulator.FailureRate)

	return nil
}

func persistSummary(backend, path string) string {
	if path == "" {
		return backend
	}
	return backend + " (" + path + ")"
}
