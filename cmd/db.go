package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/launchbot/config"
	"github.com/otherjamesbrown/launchbot/pkg/db"
)

// dbFlags holds the flags shared by the db subcommands.
type dbFlags struct {
	migrationDir string
	dryRun       bool
	yes          bool
	target       string
	output       string
	retention    time.Duration
}

// migrations returns the migration files to use: the directory flag when
// set, the embedded set otherwise.
func (f *dbFlags) migrations() fs.FS {
	if f.migrationDir != "" {
		return os.DirFS(f.migrationDir)
	}
	return db.EmbeddedMigrations()
}

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand(deps *Deps) *cobra.Command {
	flags := &dbFlags{}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Command log database management",
		Long: `Command log database management commands.

Manage the Postgres schema that holds the command log and the launch status
history. Requires DATABASE_URL or DB_* environment variables to be set.

Migrations are compiled into the binary and applied in name order; each is
tracked in the schema_migrations table. Use --migrations to read them from a
directory instead.

Examples:
  # Show migration status
  launchbot db status

  # Apply all pending migrations
  launchbot db migrate

  # Delete command log rows older than 30 days
  launchbot db cleanup --retention 720h`,
		Aliases: []string{"database"},
	}

	cmd.PersistentFlags().StringVarP(&flags.migrationDir, "migrations", "m", "", "Read migrations from this directory instead of the embedded set")

	cmd.AddCommand(newDbMigrateCommand(deps, flags))
	cmd.AddCommand(newDbStatusCommand(deps, flags))
	cmd.AddCommand(newDbCleanupCommand(deps, flags))

	return cmd
}

// newDbMigrateCommand creates the 'db migrate' subcommand.
func newDbMigrateCommand(deps *Deps, flags *dbFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending database migrations.

Shows pending migrations and asks for confirmation before applying them.
Each migration runs in a transaction; if one fails it is rolled back and no
further migrations are attempted.

Flags:
  --dry-run      Show what would be applied without executing migrations
  --target       Apply migrations up to and including this version (e.g., 002)
  --yes          Apply without asking for confirmation`,
		Example: `  launchbot db migrate
  launchbot db migrate --dry-run
  launchbot db migrate --target 001 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd.Context(), deps, flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Show what would be applied without executing")
	cmd.Flags().StringVarP(&flags.target, "target", "t", "", "Target version to migrate to (e.g., 002)")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false, "Apply without asking for confirmation")

	return cmd
}

// newDbStatusCommand creates the 'db status' subcommand.
func newDbStatusCommand(deps *Deps, flags *dbFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database migration status",
		Long: `Show the current state of database migrations.

Displays three categories of migrations:
  - Applied: migrations that have been applied and are known to this binary
  - Pending: migrations that have not been applied yet
  - Drift: migrations that were applied but are unknown to this binary`,
		Example: `  launchbot db status
  launchbot db status --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbStatus(cmd.Context(), deps, flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", string(config.OutputFormatText), "Output format: text, json")

	return cmd
}

// newDbCleanupCommand creates the 'db cleanup' subcommand.
func newDbCleanupCommand(deps *Deps, flags *dbFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old command log rows",
		Long: `Delete command log rows older than the retention period.

The server does this daily on its own; this command runs it once. The
retention defaults to LAUNCHBOT_COMMAND_LOG_RETENTION (90 days).`,
		Example: `  launchbot db cleanup
  launchbot db cleanup --retention 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbCleanup(cmd.Context(), deps, flags, cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&flags.retention, "retention", 0, "Delete rows older than this (default from configuration)")

	return cmd
}

// runDbMigrate executes the db migrate command.
func runDbMigrate(ctx context.Context, deps *Deps, flags *dbFlags, in io.Reader, out io.Writer) error {
	cfg, err := deps.loadConfig(false)
	if err != nil {
		return err
	}
	pool, err := deps.connectToDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	fsys := flags.migrations()
	pending, err := db.GetPendingMigrations(ctx, pool, fsys)
	if err != nil {
		return fmt.Errorf("getting pending migrations: %w", err)
	}
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending migrations.")
		return nil
	}

	fmt.Fprintf(out, "Pending migrations (%d):\n", len(pending))
	for _, m := range pending {
		fmt.Fprintf(out, "  %s - %s\n", m.Version, m.Name)
	}
	fmt.Fprintln(out)

	if flags.dryRun {
		fmt.Fprintln(out, "Dry run mode: no migrations applied.")
		return nil
	}
	if !flags.yes && !confirm(in, out, "Apply these migrations? (y/N): ") {
		fmt.Fprintln(out, "Migration cancelled.")
		return nil
	}

	result, err := db.RunMigrationsToTarget(ctx, pool, fsys, flags.target)
	if err != nil {
		fmt.Fprintf(out, "\n%s %v\n", errStyle.Render("Migration failed:"), err)
		if result != nil && len(result.Applied) > 0 {
			fmt.Fprintln(out, "\nSuccessfully applied before failure:")
			for _, v := range result.Applied {
				fmt.Fprintf(out, "  %s %s\n", okStyle.Render("✓"), v)
			}
		}
		return err
	}

	if len(result.Applied) > 0 {
		fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("Successfully applied %d migration(s):", len(result.Applied))))
		for _, v := range result.Applied {
			fmt.Fprintf(out, "  %s %s\n", okStyle.Render("✓"), v)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d migration(s) (already applied):\n", len(result.Skipped))
		for _, v := range result.Skipped {
			fmt.Fprintf(out, "  - %s\n", v)
		}
	}
	return nil
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// runDbStatus executes the db status command.
func runDbStatus(ctx context.Context, deps *Deps, flags *dbFlags, out io.Writer) error {
	format := config.OutputFormat(flags.output)
	if !format.IsValid() {
		return fmt.Errorf("invalid output format %q: use text or json", flags.output)
	}

	cfg, err := deps.loadConfig(false)
	if err != nil {
		return err
	}
	pool, err := deps.connectToDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	status, err := db.GetMigrationStatus(ctx, pool, flags.migrations())
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	if format == config.OutputFormatJSON {
		return writeJSON(out, status)
	}
	outputMigrationStatusText(out, status)
	return nil
}

// outputMigrationStatusText formats migration status for terminal display.
func outputMigrationStatusText(out io.Writer, status *db.MigrationStatus) {
	if len(status.Applied) == 0 && len(status.Pending) == 0 && len(status.Drift) == 0 {
		fmt.Fprintln(out, "No migrations found.")
		return
	}

	section := func(title string, entries []db.MigrationStatusEntry, withApplied bool) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintln(out, title)
		for _, m := range entries {
			if !withApplied {
				fmt.Fprintf(out, "  %-10s %s\n", m.Version, m.Name)
				continue
			}
			appliedAt := "-"
			if m.AppliedAt != nil {
				appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(out, "  %-10s %-33s %s\n", m.Version, truncate(m.Name, 33), appliedAt)
		}
		fmt.Fprintln(out)
	}

	section(okStyle.Render(fmt.Sprintf("Applied Migrations (%d):", len(status.Applied))), status.Applied, true)
	section(warnStyle.Render(fmt.Sprintf("Pending Migrations (%d):", len(status.Pending))), status.Pending, false)
	section(errStyle.Render(fmt.Sprintf("Drift (%d) - applied but unknown to this binary:", len(status.Drift))), status.Drift, true)

	summary := fmt.Sprintf("Summary: %d applied, %d pending", len(status.Applied), len(status.Pending))
	if len(status.Drift) > 0 {
		summary += ", " + errStyle.Render(fmt.Sprintf("%d drift", len(status.Drift)))
	}
	fmt.Fprintln(out, summary)
}

// runDbCleanup executes the db cleanup command.
func runDbCleanup(ctx context.Context, deps *Deps, flags *dbFlags, out io.Writer) error {
	cfg, err := deps.loadConfig(false)
	if err != nil {
		return err
	}
	retention := flags.retention
	if retention <= 0 {
		retention = cfg.CommandLogRetention
	}

	pool, err := deps.connectToDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	deleted, err := db.NewPostgresCommandLog(pool).Cleanup(ctx, retention)
	if err != nil {
		return fmt.Errorf("cleaning up command log: %w", err)
	}
	fmt.Fprintf(out, "Deleted %d command log row(s) older than %s.\n", deleted, retention)
	return nil
}
