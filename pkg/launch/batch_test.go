package launch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	lberrors "github.com/otherjamesbrown/launchbot/pkg/errors"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeExecutor answers each department with a canned row set, or blocks
// until the context ends for departments listed in hang.
type fakeExecutor struct {
	hang     map[DepartmentKey]bool
	mu       sync.Mutex
	calls    []DepartmentKey
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeExecutor) ExecuteQuery(ctx context.Context, req QueryRequest) QueryResult {
	f.mu.Lock()
	f.calls = append(f.calls, req.Department)
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.hang[req.Department] {
		<-ctx.Done()
		return QueryResult{
			Department: req.Department,
			Err:        lberrors.NewDepartmentError(string(req.Department), ctx.Err(), 1),
			Attempts:   1,
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}

	return QueryResult{
		Department: req.Department,
		Success:    true,
		Rows:       []Row{{"status": "complete"}, {"status": "open"}},
		RowCount:   2,
		Attempts:   1,
	}
}

func (f *fakeExecutor) called() []DepartmentKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DepartmentKey(nil), f.calls...)
}

func TestRunner_AllSucceed(t *testing.T) {
	exec := &fakeExecutor{}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	r := NewRunner(newTestCatalog(t), exec, DefaultRunnerConfig(), logging.NewNopLogger(), WithRunnerMetrics(metrics))

	report, err := r.Run(context.Background(), "2024-03-15")
	require.NoError(t, err)

	assert.NotEmpty(t, report.BatchID)
	assert.Equal(t, "2024-03-15", report.LaunchDateString())
	require.Len(t, report.Statuses, 5)
	for i, key := range AllDepartments() {
		s := report.Statuses[i]
		assert.Equal(t, key, s.Department)
		assert.Nil(t, s.Err)
		require.NotNil(t, s.CompletionPercentage)
		assert.InDelta(t, 50.0, *s.CompletionPercentage, 0.0001)
	}
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BatchesTotal.WithLabelValues("complete")))
}

func TestRunner_OneTimeout(t *testing.T) {
	exec := &fakeExecutor{hang: map[DepartmentKey]bool{DepartmentMFE: true}}
	cfg := RunnerConfig{MaxParallel: 5, BatchTimeout: 50 * time.Millisecond}
	r := NewRunner(newTestCatalog(t), exec, cfg, logging.NewNopLogger())

	report, err := r.Run(context.Background(), "2024-03-15")
	require.NoError(t, err)
	require.Len(t, report.Statuses, 5)

	populated := 0
	for _, s := range report.Statuses {
		if s.Department == DepartmentMFE {
			require.NotNil(t, s.Err)
			assert.Equal(t, lberrors.ErrCodeTimeout, s.Err.Code)
			assert.ErrorIs(t, s.Err, lberrors.ErrTimeout)
			assert.Nil(t, s.CompletionPercentage)
			continue
		}
		assert.Nil(t, s.Err, "department %s", s.Department)
		if s.CompletionPercentage != nil {
			populated++
		}
	}
	assert.Equal(t, 4, populated)
	assert.Equal(t, 1, report.Failed())
}

func TestRunner_SkipsUnstartedAfterDeadline(t *testing.T) {
	exec := &fakeExecutor{hang: map[DepartmentKey]bool{DepartmentBOM: true}}
	cfg := RunnerConfig{MaxParallel: 1, BatchTimeout: 30 * time.Millisecond}
	r := NewRunner(newTestCatalog(t), exec, cfg, logging.NewNopLogger())

	report, err := r.Run(context.Background(), "2024-03-15")
	require.NoError(t, err)

	assert.Equal(t, []DepartmentKey{DepartmentBOM}, exec.called())
	require.Len(t, report.Statuses, 5)
	for _, s := range report.Statuses {
		require.NotNil(t, s.Err, "department %s", s.Department)
		assert.Equal(t, lberrors.ErrCodeTimeout, s.Err.Code, "department %s", s.Department)
	}
	assert.Equal(t, 5, report.Failed())
}

func TestRunner_CancelledParentMarksEveryDepartmentCancelled(t *testing.T) {
	exec := &fakeExecutor{hang: map[DepartmentKey]bool{DepartmentBOM: true}}
	cfg := RunnerConfig{MaxParallel: 1, BatchTimeout: 5 * time.Second}
	r := NewRunner(newTestCatalog(t), exec, cfg, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	report, err := r.Run(ctx, "2024-03-15")
	require.NoError(t, err)

	require.Len(t, report.Statuses, 5)
	for _, s := range report.Statuses {
		require.NotNil(t, s.Err, "department %s", s.Department)
		assert.Equal(t, lberrors.ErrCodeCancelled, s.Err.Code, "department %s", s.Department)
	}
}

func TestRunner_BoundedParallelism(t *testing.T) {
	exec := &fakeExecutor{delay: 10 * time.Millisecond}
	cfg := RunnerConfig{MaxParallel: 2, BatchTimeout: 5 * time.Second}
	r := NewRunner(newTestCatalog(t), exec, cfg, logging.NewNopLogger())

	report, err := r.Run(context.Background(), "2024-03-15")
	require.NoError(t, err)

	assert.Equal(t, 0, report.Failed())
	assert.LessOrEqual(t, exec.peak.Load(), int32(2))
	assert.Len(t, exec.called(), 5)
}

func TestRunner_InvalidDateIssuesNoQuery(t *testing.T) {
	exec := &fakeExecutor{}
	r := NewRunner(newTestCatalog(t), exec, DefaultRunnerConfig(), logging.NewNopLogger())

	report, err := r.Run(context.Background(), "2024-02-31")
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, lberrors.IsInvalidDate(err))
	assert.Empty(t, exec.called())
}

func TestRunner_WithWarehouse(t *testing.T) {
	db, catalog := openTestWarehouse(t)
	db.SetMaxOpenConns(2)

	r := NewRunner(catalog, NewPooledExecutor(db, newTestExecutor()), DefaultRunnerConfig(), logging.NewNopLogger())
	report, err := r.Run(context.Background(), "2024-03-15")
	require.NoError(t, err)

	want := map[DepartmentKey]struct {
		rows int
		pct  *float64
	}{
		DepartmentBOM:   {2, floatPtr(50)},
		DepartmentMPL:   {1, floatPtr(100)},
		DepartmentMFE:   {0, nil},
		DepartmentFourP: {1, floatPtr(0)},
		DepartmentPPAP:  {1, floatPtr(100)},
	}
	for _, s := range report.Statuses {
		require.Nil(t, s.Err, "department %s", s.Department)
		w := want[s.Department]
		assert.Equal(t, w.rows, s.RawRowCount, "department %s", s.Department)
		if w.pct == nil {
			assert.Nil(t, s.CompletionPercentage)
			continue
		}
		require.NotNil(t, s.CompletionPercentage)
		assert.InDelta(t, *w.pct, *s.CompletionPercentage, 0.0001, "department %s", s.Department)
	}

	bom, ok := report.Result(DepartmentBOM)
	require.True(t, ok)
	assert.Equal(t, 2, bom.RowCount)
	require.NotNil(t, report.Statuses[0].LastUpdated)
	assert.Equal(t, "2024-03-02", report.Statuses[0].LastUpdated.Format(DateLayout))
}

func floatPtr(f float64) *float64 { return &f }
