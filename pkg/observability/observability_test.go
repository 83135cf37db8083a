package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveQuery("bom", "success", 120*time.Millisecond)
	m.ObserveRetry("bom")
	m.ObserveBatch("complete", time.Second)
	m.ObserveCommand("/vehicle", time.Second, "")
	m.ObserveSummary("openai", nil)
	m.ObserveDashboard(nil)
	m.ObserveRateLimited()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"launchbot_queries_total",
		"launchbot_query_seconds",
		"launchbot_query_retries_total",
		"launchbot_batches_total",
		"launchbot_batch_seconds",
		"launchbot_commands_total",
		"launchbot_command_seconds",
		"launchbot_summaries_total",
		"launchbot_dashboards_total",
		"launchbot_rate_limited_total",
	} {
		assert.True(t, names[want], "metric %s should be registered", want)
	}
}

func TestMetrics_ObserveQuery(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveQuery("ppap", "success", time.Millisecond)
	m.ObserveQuery("ppap", "timeout", time.Second)
	m.ObserveQuery("ppap", "timeout", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ppap", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("ppap", "timeout")))
}

func TestMetrics_ObserveCommand(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCommand("/vehicle", time.Second, "")
	m.ObserveCommand("/vehicle", time.Second, "invalid_date")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("/vehicle", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandsTotal.WithLabelValues("/vehicle", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("invalid_date")))
}

func TestMetrics_ObserveSummaryStatus(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveSummary("gemini", errors.New("quota"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SummariesTotal.WithLabelValues("gemini", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SummariesTotal.WithLabelValues("gemini", "success")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("bom", "success", time.Second)
		m.ObserveRetry("bom")
		m.ObserveBatch("failed", time.Second)
		m.ObserveCommand("/help", time.Second, "x")
		m.ObserveSummary("openai", nil)
		m.ObserveDashboard(nil)
		m.ObserveRateLimited()
	})
}

func TestTracer_Spans(t *testing.T) {
	tr := NewTracerWithProvider(noop.NewTracerProvider())
	ctx := context.Background()

	ctx, batch := tr.StartBatchSpan(ctx, "batch-1", "2024-03-15")
	defer batch.End()

	_, query := tr.StartQuerySpan(ctx, "bom")
	helper := NewSpanHelper(query)
	assert.NotPanics(t, func() {
		helper.SetQueryResult(3, 1)
		helper.SetError(errors.New("bom: timeout"), "timeout", false)
		helper.SetSuccess()
	})
	query.End()

	assert.Empty(t, GetTraceID(context.Background()))
}
