package launch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
)

// RunnerConfig bounds a batch run.
type RunnerConfig struct {
	// MaxParallel caps concurrent department queries.
	MaxParallel int `yaml:"max_parallel"`

	// BatchTimeout is the deadline for the whole batch.
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// DefaultRunnerConfig runs all five departments at once under a 60s deadline.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxParallel:  5,
		BatchTimeout: 60 * time.Second,
	}
}

// Runner fans a launch date out to every department and collects the report.
type Runner struct {
	catalog   *Catalog
	builder   *Builder
	formatter *Formatter
	exec      QueryExecutor
	cfg       RunnerConfig
	logger    logging.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	newID     func() string
	now       func() time.Time
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithRunnerMetrics records batch metrics.
func WithRunnerMetrics(m *observability.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRunnerTracer records a span per batch.
func WithRunnerTracer(t *observability.Tracer) RunnerOption {
	return func(r *Runner) { r.tracer = t }
}

// NewRunner creates a batch runner.
func NewRunner(catalog *Catalog, exec QueryExecutor, cfg RunnerConfig, logger logging.Logger, opts ...RunnerOption) *Runner {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultRunnerConfig().MaxParallel
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultRunnerConfig().BatchTimeout
	}
	if logger == nil {
		logger = logging.Global()
	}
	r := &Runner{
		catalog:   catalog,
		builder:   NewBuilder(catalog),
		formatter: NewFormatter(catalog),
		exec:      exec,
		cfg:       cfg,
		logger:    logger,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run validates launchDate and runs the batch. The only error returned is an
// InvalidDateError, in which case no query is issued.
func (r *Runner) Run(ctx context.Context, launchDate string) (*BatchReport, error) {
	date, err := ParseLaunchDate(launchDate)
	if err != nil {
		return nil, err
	}
	return r.RunDate(ctx, date)
}

// RunDate runs every department for date under the batch deadline.
func (r *Runner) RunDate(ctx context.Context, date time.Time) (*BatchReport, error) {
	reqs := make([]QueryRequest, 0, len(r.catalog.departments))
	for _, spec := range r.catalog.departments {
		req, err := r.builder.BuildDate(spec, date)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}

	report := &BatchReport{
		BatchID:    r.newID(),
		LaunchDate: date,
		StartedAt:  r.now(),
	}

	ctx = logging.WithBatchID(ctx, report.BatchID)
	ctx, cancel := context.WithTimeout(ctx, r.cfg.BatchTimeout)
	defer cancel()

	if r.tracer != nil {
		var span observability.Span
		ctx, span = r.tracer.StartBatchSpan(ctx, report.BatchID, date.Format(DateLayout))
		defer span.End()
	}

	log := r.logger.WithContext(ctx)
	log.Info("launch status batch started",
		logging.F("launch_date", date.Format(DateLayout)),
		logging.F("departments", len(reqs)),
		logging.F("max_parallel", r.cfg.MaxParallel))

	results := make([]QueryResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxParallel)
	for i := range reqs {
		req := reqs[i]
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				// Unstarted departments get the same code as in-flight ones:
				// timeout for the batch deadline, cancelled for shutdown.
				results[i] = QueryResult{
					Department: req.Department,
					Err:        lberrors.NewDepartmentError(string(req.Department), err, 0),
				}
				return nil
			}
			results[i] = r.exec.ExecuteQuery(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	report.Statuses = r.formatter.FormatAll(results)
	report.Duration = r.now().Sub(report.StartedAt)

	failed := report.Failed()
	outcome := "complete"
	switch {
	case failed == len(results):
		outcome = "failed"
	case failed > 0:
		outcome = "partial"
	}
	r.metrics.ObserveBatch(outcome, report.Duration)

	log.Info("launch status batch finished",
		logging.F("outcome", outcome),
		logging.F("failed", failed),
		logging.F("duration", report.Duration))

	return report, nil
}
