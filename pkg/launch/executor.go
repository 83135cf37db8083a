package launch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
)

// Conn is the part of a live database connection the executor needs.
// *sql.Conn, *sql.DB and *sql.Tx satisfy it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ArgBinder converts a Param into a driver argument.
type ArgBinder func(Param) any

// NamedArg binds a parameter as sql.Named with its string value.
func NamedArg(p Param) any {
	return sql.Named(p.Name, p.Value)
}

// ExecutorConfig configures the query executor.
type ExecutorConfig struct {
	// QueryTimeout bounds the total wait for one department, retries included.
	QueryTimeout time.Duration

	// Retry controls connectivity retries.
	Retry RetryPolicy

	// Bind converts parameters into driver arguments. Defaults to NamedArg.
	Bind ArgBinder
}

// DefaultExecutorConfig returns the production executor defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		QueryTimeout: 30 * time.Second,
		Retry:        DefaultRetryPolicy(),
		Bind:         NamedArg,
	}
}

// Executor runs built queries on a caller-supplied connection.
type Executor struct {
	cfg     ExecutorConfig
	logger  logging.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	sleep   func(ctx context.Context, d time.Duration) error
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithExecutorMetrics records per-query metrics.
func WithExecutorMetrics(m *observability.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithExecutorTracer records a span per department query.
func WithExecutorTracer(t *observability.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// NewExecutor creates an executor.
func NewExecutor(cfg ExecutorConfig, logger logging.Logger, opts ...ExecutorOption) *Executor {
	if cfg.Bind == nil {
		cfg.Bind = NamedArg
	}
	if logger == nil {
		logger = logging.Global()
	}
	e := &Executor{
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// acquireFunc returns the connection for one attempt and its release func.
type acquireFunc func(ctx context.Context) (Conn, func(), error)

// Execute runs req on conn and returns its rows or a classified error.
// It never returns a Go error; failures travel in QueryResult.Err.
func (e *Executor) Execute(ctx context.Context, conn Conn, req QueryRequest) QueryResult {
	return e.execute(ctx, req, func(context.Context) (Conn, func(), error) {
		return conn, func() {}, nil
	})
}

// execute acquires a connection per attempt, so waiting for the pool counts
// against QueryTimeout and acquire failures are classified and retried like
// query failures.
func (e *Executor) execute(ctx context.Context, req QueryRequest, acquire acquireFunc) QueryResult {
	start := time.Now()
	dept := string(req.Department)

	ctx = logging.WithDepartment(ctx, dept)
	if e.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout)
		defer cancel()
	}

	var span *observability.SpanHelper
	if e.tracer != nil {
		var s observability.Span
		ctx, s = e.tracer.StartQuerySpan(ctx, dept)
		defer s.End()
		span = observability.NewSpanHelper(s)
	}

	log := e.logger.WithContext(ctx)

	args := make([]any, len(req.Params))
	for i, p := range req.Params {
		args[i] = e.cfg.Bind(p)
	}

	var (
		lastErr  error
		attempts int
	)
	for retry := 0; ; retry++ {
		attempts++
		cols, rows, err := attempt(ctx, acquire, req.Template, args)
		if err == nil {
			result := QueryResult{
				Department: req.Department,
				Columns:    cols,
				Rows:       rows,
				RowCount:   len(rows),
				Success:    true,
				Attempts:   attempts,
				Duration:   time.Since(start),
			}
			e.metrics.ObserveQuery(dept, "success", result.Duration)
			if span != nil {
				span.SetQueryResult(len(rows), attempts)
				span.SetSuccess()
			}
			log.Debug("department query succeeded",
				logging.F("rows", len(rows)),
				logging.F("attempts", attempts),
				logging.F("duration", result.Duration))
			return result
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			lastErr = errors.Join(ctxErr, err)
			break
		}
		lastErr = err

		decision := e.cfg.Retry.DecideRetry(err, retry)
		if !decision.ShouldRetry {
			break
		}

		e.metrics.ObserveRetry(dept)
		log.Warn("retrying department query",
			logging.F("attempt", attempts),
			logging.F("backoff", decision.BackoffDuration),
			logging.F("error_code", string(lberrors.ClassifyError(err))))

		if sleepErr := e.sleep(ctx, decision.BackoffDuration); sleepErr != nil {
			lastErr = errors.Join(sleepErr, err)
			break
		}
	}

	deptErr := lberrors.NewDepartmentError(dept, lastErr, attempts)
	result := QueryResult{
		Department: req.Department,
		Success:    false,
		Err:        deptErr,
		Attempts:   attempts,
		Duration:   time.Since(start),
	}

	e.metrics.ObserveQuery(dept, string(deptErr.Code), result.Duration)
	if span != nil {
		span.SetQueryResult(0, attempts)
		span.SetError(deptErr, string(deptErr.Code), lberrors.IsRetryable(deptErr.Code))
	}
	log.Error("department query failed",
		logging.F("error_code", string(deptErr.Code)),
		logging.F("attempts", attempts),
		logging.F("duration", result.Duration),
		logging.Err(lastErr))

	return result
}

func attempt(ctx context.Context, acquire acquireFunc, query string, args []any) ([]string, []Row, error) {
	conn, release, err := acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer release()
	return runQuery(ctx, conn, query, args)
}

func runQuery(ctx context.Context, conn Conn, query string, args []any) ([]string, []Row, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := make([]Row, 0)
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}

		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return cols, out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// QueryExecutor runs one department query end to end, connection included.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, req QueryRequest) QueryResult
}

// PooledExecutor acquires a connection from a bounded pool for each query and
// releases it when the query returns.
type PooledExecutor struct {
	db   *sql.DB
	exec *Executor
}

// NewPooledExecutor wraps exec with scoped connection acquisition from db.
func NewPooledExecutor(db *sql.DB, exec *Executor) *PooledExecutor {
	return &PooledExecutor{db: db, exec: exec}
}

// ExecuteQuery implements QueryExecutor.
func (p *PooledExecutor) ExecuteQuery(ctx context.Context, req QueryRequest) QueryResult {
	return p.exec.execute(ctx, req, p.acquire)
}

func (p *PooledExecutor) acquire(ctx context.Context) (Conn, func(), error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	return conn, func() { conn.Close() }, nil
}
