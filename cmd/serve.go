package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/launchbot/pkg/bot"
	"github.com/otherjamesbrown/launchbot/pkg/buildinfo"
	"github.com/otherjamesbrown/launchbot/pkg/chat"
	"github.com/otherjamesbrown/launchbot/pkg/db"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
	"github.com/otherjamesbrown/launchbot/pkg/server"
	"github.com/otherjamesbrown/launchbot/pkg/session"
	"github.com/otherjamesbrown/launchbot/pkg/sheets"
	"github.com/otherjamesbrown/launchbot/pkg/summarizer"
	"github.com/otherjamesbrown/launchbot/pkg/warehouse"
)

const (
	metricsNamespace = "launchbot"
	retentionEvery   = 24 * time.Hour
)

// NewServeCommand creates the 'serve' command.
func NewServeCommand(deps *Deps) *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot HTTP server",
		Long: `Run the Slack bot HTTP server.

Serves Slack slash commands on POST /slack/commands together with /health,
/metrics and /version. Requires the warehouse settings, SLACK_BOT_TOKEN and
SLACK_SIGNING_SECRET. Postgres (command log and status history), Redis
(sessions), the AI summarizer and Google Sheets dashboards are enabled when
their settings are present.

Pending command log migrations are applied at startup unless
--skip-migrations is set.`,
		Example: `  launchbot serve
  launchbot serve --env-file /etc/launchbot/env
  LAUNCHBOT_LISTEN_ADDR=:9000 launchbot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, deps, skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply command log migrations at startup")

	return cmd
}

// runServe wires every component and serves until ctx ends.
func runServe(ctx context.Context, deps *Deps, skipMigrations bool) error {
	cfg, err := deps.loadConfig(true)
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stderr)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)
	tracer := observability.NewTracer()

	// Warehouse.
	wh, err := deps.OpenWarehouse(cfg.Warehouse)
	if err != nil {
		return fmt.Errorf("opening warehouse: %w", err)
	}
	defer warehouse.Close(wh)
	if _, err := warehouse.RegisterPoolStatsCollector(wh, metricsNamespace, server.ServiceName, reg); err != nil {
		return fmt.Errorf("registering warehouse metrics: %w", err)
	}
	warehouseCheck := server.DetailFunc(func(ctx context.Context) (map[string]any, error) {
		h, err := warehouse.CheckHealth(ctx, wh)
		return h.Details(), err
	})
	runner := deps.newRunner(cfg, wh, logger, metrics, tracer)

	// Summarizer.
	provider, err := summarizer.NewProvider(ctx, cfg.Summarizer)
	if err != nil {
		return fmt.Errorf("creating summarizer: %w", err)
	}
	summ := summarizer.New(provider, cfg.Summarizer, logger,
		summarizer.WithMetrics(metrics),
		summarizer.WithTracer(tracer),
	)

	botOpts := []bot.Option{
		bot.WithWarehouse(warehouseCheck),
		bot.WithInfo(bot.Info{Environment: cfg.Environment, Version: buildinfo.Version}),
		bot.WithMetrics(metrics),
		bot.WithTracer(tracer),
	}
	srvOpts := []server.Option{
		server.WithGatherer(reg),
		server.WithMetrics(metrics),
		server.WithCheck("warehouse", warehouseCheck),
	}

	// Sessions.
	var sessions session.Store
	if cfg.RedisURL != "" {
		client, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer client.Close()
		store := session.NewRedisStore(client, cfg.SessionTTL)
		sessions = store
		botOpts = append(botOpts, bot.WithPersistentSessions())
		srvOpts = append(srvOpts, server.WithCheck("redis", store))
	} else {
		sessions = session.NewMemoryStore(cfg.SessionTTL)
	}

	// Command log and status history.
	if cfg.DatabaseEnabled() {
		pool, err := deps.connectToDatabase(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()

		if !skipMigrations {
			result, err := db.RunMigrations(ctx, pool, db.EmbeddedMigrations())
			if err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			if len(result.Applied) > 0 {
				logger.Info("migrations applied", logging.F("versions", result.Applied))
			}
		}
		if _, err := db.RegisterPoolStatsCollector(pool, metricsNamespace, server.ServiceName, reg); err != nil {
			return fmt.Errorf("registering database metrics: %w", err)
		}

		commandLog := db.NewPostgresCommandLog(pool)
		botOpts = append(botOpts,
			bot.WithCommandLog(commandLog),
			bot.WithSnapshots(db.NewPostgresSnapshotStore(pool)),
		)
		srvOpts = append(srvOpts, server.WithCheck("postgres", server.DetailFunc(func(ctx context.Context) (map[string]any, error) {
			h, err := db.CheckHealth(ctx, pool)
			return h.Details(), err
		})))
		go retentionLoop(ctx, commandLog, cfg.CommandLogRetention, retentionEvery, logger)
	}

	// Dashboards.
	if cfg.Sheets.Enabled() {
		writer, err := sheets.New(ctx, cfg.Sheets, logger,
			sheets.WithMetrics(metrics),
			sheets.WithTracer(tracer),
		)
		if err != nil {
			return fmt.Errorf("creating dashboard writer: %w", err)
		}
		botOpts = append(botOpts, bot.WithDashboards(writer))
	}

	notifier := chat.NewNotifier(cfg.Slack.BotToken)
	srvOpts = append(srvOpts, server.WithCheck("slack", notifier))

	b := bot.New(runner, summ, sessions, logger, botOpts...)
	srv := server.New(cfg.Server, b, notifier, logger, srvOpts...)

	logger.Info("launchbot starting",
		logging.F("version", buildinfo.Version),
		logging.F("addr", cfg.Server.Addr),
		logging.F("command_log", cfg.DatabaseEnabled()),
		logging.F("persistent_sessions", cfg.RedisURL != ""),
		logging.F("summarizer", summ.Enabled()),
		logging.F("dashboards", cfg.Sheets.Enabled()),
	)
	return srv.ListenAndServe(ctx)
}

// retentionLoop deletes command log rows older than retention, once at
// start and then every interval until ctx ends.
func retentionLoop(ctx context.Context, l db.CommandLog, retention, every time.Duration, logger logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		deleted, err := l.Cleanup(ctx, retention)
		if err != nil && ctx.Err() == nil {
			logger.Warn("command log cleanup failed", logging.Err(err))
		} else if deleted > 0 {
			logger.Info("command log cleaned up", logging.F("deleted", deleted))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
