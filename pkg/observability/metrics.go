// Package observability holds the Prometheus metrics and OpenTelemetry spans
// recorded by launchbot.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for launchbot.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Warehouse query metrics
	QueriesTotal      *prometheus.CounterVec
	QuerySeconds      *prometheus.HistogramVec
	QueryRetriesTotal *prometheus.CounterVec

	// Batch metrics
	BatchesTotal *prometheus.CounterVec
	BatchSeconds prometheus.Histogram

	// Slash command metrics
	CommandsTotal  *prometheus.CounterVec
	CommandSeconds *prometheus.HistogramVec
	ErrorsTotal    *prometheus.CounterVec

	// Collaborator metrics
	SummariesTotal   *prometheus.CounterVec
	DashboardsTotal  *prometheus.CounterVec
	RateLimitedTotal prometheus.Counter
}

// DefaultMetrics creates metrics registered with the default registry.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates a new set of launchbot metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchbot_queries_total",
				Help: "Department queries by outcome code",
			},
			[]string{"department", "status"},
		),
		QuerySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "launchbot_query_seconds",
				Help:    "Department query latency, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"department"},
		),
		QueryRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchbot_query_retries_total",
				Help: "Department query retries after connectivity failures",
			},
			[]string{"department"},
		),

		BatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchbot_batches_total",
				Help: "Launch status batches by outcome",
			},
			[]string{"outcome"},
		),
		BatchSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "launchbot_batch_seconds",
				Help:    "Launch status batch latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchbot_commands_total",
				Help: "Slash commands handled",
			},
			[]string{"command", "status"},
		),
		CommandSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "launchbot_command_seconds",
				Help:    "Slash command response time",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"command"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchbot_errors_total",
				Help: "Errors by type",
			},
			[]string{"error_type"},
		),

		SummariesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchbot_summaries_total",
				Help: "AI summaries by provider and status",
			},
			[]string{"provider", "status"},
		),
		DashboardsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "launchbot_dashboards_total",
				Help: "Dashboard spreadsheets written by status",
			},
			[]string{"status"},
		),
		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "launchbot_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
	}
}

// ObserveQuery records one finished department query.
func (m *Metrics) ObserveQuery(department, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(department, status).Inc()
	m.QuerySeconds.WithLabelValues(department).Observe(d.Seconds())
}

// ObserveRetry records one query retry.
func (m *Metrics) ObserveRetry(department string) {
	if m == nil {
		return
	}
	m.QueryRetriesTotal.WithLabelValues(department).Inc()
}

// ObserveBatch records one finished batch.
func (m *Metrics) ObserveBatch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(outcome).Inc()
	m.BatchSeconds.Observe(d.Seconds())
}

// ObserveCommand records one handled slash command. errorType is empty on success.
func (m *Metrics) ObserveCommand(command string, d time.Duration, errorType string) {
	if m == nil {
		return
	}
	status := "success"
	if errorType != "" {
		status = "error"
		m.ErrorsTotal.WithLabelValues(errorType).Inc()
	}
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandSeconds.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveSummary records one summarizer call.
func (m *Metrics) ObserveSummary(provider string, err error) {
	if m == nil {
		return
	}
	m.SummariesTotal.WithLabelValues(provider, statusLabel(err)).Inc()
}

// ObserveDashboard records one dashboard write.
func (m *Metrics) ObserveDashboard(err error) {
	if m == nil {
		return
	}
	m.DashboardsTotal.WithLabelValues(statusLabel(err)).Inc()
}

// ObserveRateLimited records one rejected request.
func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
