// Package bot handles slash commands: it runs launch batches, asks the
// summarizer for an analysis, keeps the user's session and exports
// dashboards.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/slack-go/slack"

	"github.com/otherjamesbrown/launchbot/pkg/chat"
	"github.com/otherjamesbrown/launchbot/pkg/db"
	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
	"github.com/otherjamesbrown/launchbot/pkg/session"
	"github.com/otherjamesbrown/launchbot/pkg/sheets"
)

// Error codes recorded for failures outside the department registry.
const (
	codeMissingDate    = "missing_date"
	codeBatchFailed    = "batch_failed"
	codeNoSession      = "no_session"
	codeSessionFailed  = "session_failed"
	codeDashboard      = "dashboard_failed"
	codeNotConfigured  = "not_configured"
	codeUnknownCommand = "unknown_command"
)

// activityDays is the window /status reports on.
const activityDays = 7

// Runner runs one launch batch.
type Runner interface {
	Run(ctx context.Context, launchDate string) (*launch.BatchReport, error)
}

// Summarizer produces the AI analysis of a batch.
type Summarizer interface {
	Enabled() bool
	Summarize(ctx context.Context, launchDate string, statuses []launch.DepartmentStatus) (string, error)
}

// DashboardWriter exports a batch to a spreadsheet.
type DashboardWriter interface {
	Create(ctx context.Context, in sheets.Input) (*sheets.Dashboard, error)
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Info describes the running deployment for /status.
type Info struct {
	Environment string
	Version     string
}

// Bot handles slash commands.
type Bot struct {
	runner     Runner
	summarizer Summarizer
	sessions   session.Store
	logger     logging.Logger

	dashboards DashboardWriter
	commandLog db.CommandLog
	snapshots  db.SnapshotStore
	warehouse  Pinger
	persistent bool
	info       Info

	metrics *observability.Metrics
	tracer  *observability.Tracer

	startedAt time.Time
	now       func() time.Time
}

// Option customizes a Bot.
type Option func(*Bot)

// WithDashboards enables /dashboard.
func WithDashboards(w DashboardWriter) Option {
	return func(b *Bot) { b.dashboards = w }
}

// WithCommandLog records every command.
func WithCommandLog(l db.CommandLog) Option {
	return func(b *Bot) { b.commandLog = l }
}

// WithSnapshots stores every batch's statuses.
func WithSnapshots(s db.SnapshotStore) Option {
	return func(b *Bot) { b.snapshots = s }
}

// WithWarehouse lets /status check warehouse reachability.
func WithWarehouse(p Pinger) Option {
	return func(b *Bot) { b.warehouse = p }
}

// WithPersistentSessions marks the session store as shared across restarts.
func WithPersistentSessions() Option {
	return func(b *Bot) { b.persistent = true }
}

// WithInfo sets the environment and version shown by /status.
func WithInfo(info Info) Option {
	return func(b *Bot) { b.info = info }
}

// WithMetrics records Prometheus metrics per command.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

// WithTracer records a span per command.
func WithTracer(t *observability.Tracer) Option {
	return func(b *Bot) { b.tracer = t }
}

// New creates a bot.
func New(runner Runner, summarizer Summarizer, sessions session.Store, logger logging.Logger, opts ...Option) *Bot {
	if logger == nil {
		logger = logging.Global()
	}
	b := &Bot{
		runner:     runner,
		summarizer: summarizer,
		sessions:   sessions,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.startedAt = b.now()
	return b
}

// Deferred reports whether cmd must run in the background. When it must,
// the returned message is the immediate acknowledgement.
func (b *Bot) Deferred(cmd chat.Command) (slack.Msg, bool) {
	switch cmd.Name {
	case chat.CommandVehicle:
		date, ok := chat.ExtractLaunchDate(cmd.Text)
		if !ok {
			return slack.Msg{}, false
		}
		if _, err := launch.ParseLaunchDate(date); err != nil {
			return slack.Msg{}, false
		}
		return chat.RenderAck(date), true
	case chat.CommandDashboard:
		if b.dashboards == nil {
			return slack.Msg{}, false
		}
		return chat.RenderDashboardAck(), true
	}
	return slack.Msg{}, false
}

// outcome is what a command handler reports back for logging.
type outcome struct {
	launchDate *time.Time
	batchID    string
	errorCode  string
}

// Handle runs cmd to completion and returns the reply.
func (b *Bot) Handle(ctx context.Context, cmd chat.Command) slack.Msg {
	start := b.now()
	if b.tracer != nil {
		var span observability.Span
		ctx, span = b.tracer.StartCommandSpan(ctx, cmd.Name, cmd.UserID)
		defer span.End()
	}

	var (
		msg slack.Msg
		out outcome
	)
	switch cmd.Name {
	case chat.CommandVehicle:
		msg, out = b.vehicle(ctx, cmd)
	case chat.CommandDashboard:
		msg, out = b.dashboard(ctx, cmd)
	case chat.CommandStatus:
		msg = b.status(ctx)
	case chat.CommandHelp:
		msg = chat.RenderHelp()
	default:
		msg = chat.RenderHelp()
		out.errorCode = codeUnknownCommand
	}

	elapsed := b.now().Sub(start)
	b.metrics.ObserveCommand(cmd.Name, elapsed, out.errorCode)
	b.record(ctx, cmd, out, elapsed)

	b.logger.WithContext(ctx).Info("command handled",
		logging.F("command", cmd.Name),
		logging.F("user_id", cmd.UserID),
		logging.F("duration_ms", elapsed.Milliseconds()),
		logging.F("error_code", out.errorCode),
	)
	return msg
}

func (b *Bot) vehicle(ctx context.Context, cmd chat.Command) (slack.Msg, outcome) {
	date, ok := chat.ExtractLaunchDate(cmd.Text)
	if !ok {
		return chat.RenderUsage(), outcome{errorCode: codeMissingDate}
	}

	report, err := b.runner.Run(ctx, date)
	if err != nil {
		if lberrors.IsInvalidDate(err) {
			return chat.RenderInvalidDate(date), outcome{errorCode: string(lberrors.ErrCodeInvalidDate)}
		}
		b.logger.WithContext(ctx).Error("batch failed", logging.F("launch_date", date), logging.Err(err))
		return chat.RenderError(), outcome{errorCode: codeBatchFailed}
	}

	ctx = logging.WithBatchID(ctx, report.BatchID)
	log := b.logger.WithContext(ctx)
	out := outcome{launchDate: &report.LaunchDate, batchID: report.BatchID}
	for _, s := range report.Statuses {
		if s.Err != nil {
			out.errorCode = string(s.Err.Code)
			break
		}
	}

	analysis := ""
	if b.summarizer != nil {
		// Failures come back as a notice; the error is already logged.
		analysis, _ = b.summarizer.Summarize(ctx, date, report.Statuses)
	}

	if err := b.sessions.Save(ctx, session.FromReport(cmd.UserID, report)); err != nil {
		log.Warn("failed to save session", logging.F("user_id", cmd.UserID), logging.Err(err))
	}
	if b.snapshots != nil {
		if err := b.snapshots.SaveReport(ctx, report); err != nil {
			log.Warn("failed to save snapshots", logging.Err(err))
		}
	}

	return chat.RenderReport(report.LaunchDateString(), report.Statuses, analysis), out
}

func (b *Bot) dashboard(ctx context.Context, cmd chat.Command) (slack.Msg, outcome) {
	if b.dashboards == nil {
		return chat.RenderNotConfigured("Dashboard export"), outcome{errorCode: codeNotConfigured}
	}

	sess, err := b.sessions.Load(ctx, cmd.UserID)
	if err != nil {
		if lberrors.IsNotFound(err) {
			return chat.RenderNoSession(), outcome{errorCode: codeNoSession}
		}
		b.logger.WithContext(ctx).Error("failed to load session", logging.F("user_id", cmd.UserID), logging.Err(err))
		return chat.RenderError(), outcome{errorCode: codeSessionFailed}
	}

	out := outcome{batchID: sess.BatchID}
	if d, err := launch.ParseLaunchDate(sess.LaunchDate); err == nil {
		out.launchDate = &d
	}

	dash, err := b.dashboards.Create(ctx, DashboardInput(sess))
	if err != nil {
		b.logger.WithContext(ctx).Error("dashboard failed",
			logging.F("launch_date", sess.LaunchDate),
			logging.F("batch_id", sess.BatchID),
			logging.Err(err),
		)
		out.errorCode = codeDashboard
		return chat.RenderError(), out
	}
	return chat.RenderDashboard(sess.LaunchDate, dash.URL), out
}

// DashboardInput builds the dashboard for a stored session. Departments
// that failed get a summary row but no sheet.
func DashboardInput(sess *session.Session) sheets.Input {
	in := sheets.Input{
		LaunchDate: sess.LaunchDate,
		Statuses:   sess.Statuses(),
	}
	for _, d := range sess.Departments {
		if d.ErrorCode != "" {
			continue
		}
		in.Departments = append(in.Departments, sheets.Department{
			Key:     d.Key,
			Columns: d.Columns,
			Rows:    d.Rows,
		})
	}
	return in
}

func (b *Bot) status(ctx context.Context) slack.Msg {
	st := chat.SystemStatus{
		Uptime:             b.now().Sub(b.startedAt),
		Environment:        b.info.Environment,
		Version:            b.info.Version,
		DatabaseConfigured: b.commandLog != nil,
		SessionsPersistent: b.persistent,
		SummarizerEnabled:  b.summarizer != nil && b.summarizer.Enabled(),
		DashboardsEnabled:  b.dashboards != nil,
	}

	if b.commandLog != nil {
		summary, err := b.commandLog.Summary(ctx, activityDays)
		if err != nil {
			b.logger.WithContext(ctx).Warn("failed to read command summary", logging.Err(err))
		} else {
			st.Activity = &chat.Activity{
				Days:          summary.PeriodDays,
				TotalCommands: summary.TotalCommands,
				SuccessRate:   summary.SuccessRate,
				AvgResponseMs: summary.AvgResponseMs,
			}
		}
	}

	if b.warehouse != nil {
		if err := b.warehouse.Ping(ctx); err != nil {
			st.WarehouseCheckError = "unreachable"
			if errors.Is(err, context.DeadlineExceeded) {
				st.WarehouseCheckError = "timed out"
			}
		} else {
			st.WarehouseReachable = true
		}
	}

	return chat.RenderStatus(st)
}

func (b *Bot) record(ctx context.Context, cmd chat.Command, out outcome, elapsed time.Duration) {
	if b.commandLog == nil {
		return
	}
	rec := db.CommandRecord{
		UserID:       cmd.UserID,
		ChannelID:    cmd.ChannelID,
		Command:      cmd.Name,
		LaunchDate:   out.launchDate,
		BatchID:      out.batchID,
		ResponseTime: elapsed,
		Success:      out.errorCode == "",
		ErrorCode:    out.errorCode,
	}
	if err := b.commandLog.Record(ctx, rec); err != nil {
		b.logger.WithContext(ctx).Warn("failed to record command", logging.F("command", cmd.Name), logging.Err(err))
	}
}
