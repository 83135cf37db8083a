// Package cmd provides CLI commands for the launchbot tool.
package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/launchbot/config"
	"github.com/otherjamesbrown/launchbot/credentials"
	"github.com/otherjamesbrown/launchbot/pkg/db"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
	"github.com/otherjamesbrown/launchbot/pkg/warehouse"
)

// Deps holds the dependencies shared by launchbot commands.
type Deps struct {
	// EnvFile is bound to the root --env-file flag.
	EnvFile string

	Secrets       *credentials.Store
	LoadConfig    func(config.Options) (*config.Config, error)
	OpenWarehouse func(*warehouse.Config) (*sql.DB, error)
	ConnectToDB   func(context.Context, *db.Config) (*pgxpool.Pool, error)
	// Bind converts query parameters into warehouse driver arguments.
	Bind launch.ArgBinder
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *Deps {
	return &Deps{
		Secrets:       credentials.NewStore(),
		LoadConfig:    config.Load,
		OpenWarehouse: warehouse.Open,
		ConnectToDB:   db.Connect,
		Bind:          warehouse.BindParam,
	}
}

// loadConfig loads configuration with the keyring as the secret fallback.
func (d *Deps) loadConfig(requireSlack bool) (*config.Config, error) {
	opts := config.Options{EnvFile: d.EnvFile, RequireSlack: requireSlack}
	if d.Secrets != nil {
		opts.Secrets = d.Secrets
	}
	cfg, err := d.LoadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// connectToDatabase opens the command log pool, failing when none is configured.
func (d *Deps) connectToDatabase(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if !cfg.DatabaseEnabled() {
		return nil, fmt.Errorf("no database configured: set DATABASE_URL or DB_HOST")
	}
	pool, err := d.ConnectToDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// newRunner builds the batch runner over pool. Metrics and tracer may be nil.
func (d *Deps) newRunner(cfg *config.Config, pool *sql.DB, logger logging.Logger, metrics *observability.Metrics, tracer *observability.Tracer) *launch.Runner {
	execCfg := cfg.Executor
	if d.Bind != nil {
		execCfg.Bind = d.Bind
	}
	exec := launch.NewExecutor(execCfg, logger,
		launch.WithExecutorMetrics(metrics),
		launch.WithExecutorTracer(tracer),
	)
	return launch.NewRunner(cfg.Catalog, launch.NewPooledExecutor(pool, exec), cfg.Runner, logger,
		launch.WithRunnerMetrics(metrics),
		launch.WithRunnerTracer(tracer),
	)
}

// newLogger builds the process logger and installs it as the global one.
func newLogger(cfg *config.Config, out io.Writer) logging.Logger {
	lc := cfg.LoggingConfig()
	lc.Output = out
	logger := logging.NewLogger(lc)
	logging.SetGlobal(logger)
	return logger
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatDurationMs formats milliseconds as a human-readable duration.
func formatDurationMs(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// truncate shortens s to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
