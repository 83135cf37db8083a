// Package main provides the launchbot entry point.
// launchbot answers Slack questions about vehicle program launch readiness
// from the department tables in a Databricks SQL warehouse.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/launchbot/cmd"
	"github.com/otherjamesbrown/launchbot/config"
	"github.com/otherjamesbrown/launchbot/pkg/buildinfo"
)

// deps is shared by every subcommand.
var deps = cmd.DefaultDeps()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "launchbot",
	Short: "Vehicle program launch status bot",
	Long: `launchbot reports vehicle program launch readiness.

For a launch date it queries five department tables (Bill of Material,
Master Parts List, Material Flow Engineering, 4P and PPAP) in a Databricks
SQL warehouse in parallel, and reports each department's completion.

It runs as a Slack bot (launchbot serve) answering /vehicle, /dashboard,
/status and /help, or from the terminal (launchbot status).

Configuration is read from the environment and from a .env file; secrets may
be kept in the system keyring instead (launchbot auth set).

COMMON WORKFLOWS:
  Run the bot:          launchbot serve
  Check a launch date:  launchbot status 2024-03-15
  Store a secret:       launchbot auth set databricks-token
  Prepare the database: launchbot db migrate`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Version command flags.
var versionOutput string

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of launchbot.

Use --output json for machine-readable output.`,
	Example: `  launchbot version
  launchbot version --output json`,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get(rootCmd.Use)
		out := c.OutOrStdout()

		if config.OutputFormat(versionOutput) == config.OutputFormatJSON {
			return writeJSON(out, info)
		}

		fmt.Fprintf(out, "launchbot version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s\n", info.GoVersion)
		return nil
	},
}

// Config command flags.
var configOutput string

// configCmd inspects configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
	Long:  `Inspect the configuration launchbot would run with.`,
}

// configShowCmd displays the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Load and validate the configuration, then print the effective settings.

Secrets are masked. Every missing or invalid setting is reported together.`,
	Example: `  launchbot config show
  launchbot config show --output json
  launchbot --env-file prod.env config show`,
	RunE: func(c *cobra.Command, args []string) error {
		cfg, err := deps.LoadConfig(config.Options{EnvFile: deps.EnvFile, Secrets: deps.Secrets})
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		settings := cfg.Describe()
		out := c.OutOrStdout()
		if config.OutputFormat(configOutput) == config.OutputFormatJSON {
			return writeJSON(out, settings)
		}

		width := 0
		for _, s := range settings {
			width = max(width, len(s.Key))
		}
		for _, s := range settings {
			fmt.Fprintf(out, "  %-*s  %s\n", width, s.Key, s.Value)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&deps.EnvFile, "env-file", config.DefaultEnvFile, "Read settings from this .env file when present")

	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", string(config.OutputFormatText), "Output format: text, json")
	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", string(config.OutputFormatText), "Output format: text, json")
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(
		versionCmd,
		configCmd,
		cmd.NewServeCommand(deps),
		cmd.NewStatusCommand(deps),
		cmd.NewDbCommand(deps),
		cmd.NewAuthCommand(deps),
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cmd.ExitCode(err))
}
