package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the name of the tracer for launchbot operations.
	TracerName = "launchbot"
)

// Span attribute keys
const (
	AttrBatchID    = "batch_id"
	AttrLaunchDate = "launch_date"
	AttrDepartment = "department"
	AttrCommand    = "command"
	AttrUserID     = "user_id"
	AttrRows       = "rows"
	AttrAttempts   = "attempts"
	AttrErrorType  = "error_type"
	AttrRetryable  = "retryable"
	AttrProvider   = "provider"
)

// Span names
const (
	SpanBatch     = "launchbot.batch"
	SpanQuery     = "launchbot.query"
	SpanCommand   = "launchbot.command"
	SpanSummarize = "launchbot.summarize"
	SpanDashboard = "launchbot.dashboard"
)

// Span is the OpenTelemetry span type handed back by the Tracer.
type Span = trace.Span

// Tracer provides distributed tracing for launchbot operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return NewTracerWithProvider(otel.GetTracerProvider())
}

// NewTracerWithProvider creates a tracer from tp.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// StartBatchSpan starts the root span for one launch date batch.
func (t *Tracer) StartBatchSpan(ctx context.Context, batchID, launchDate string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanBatch,
		trace.WithAttributes(
			attribute.String(AttrBatchID, batchID),
			attribute.String(AttrLaunchDate, launchDate),
		),
	)
}

// StartQuerySpan starts a span for one department query.
func (t *Tracer) StartQuerySpan(ctx context.Context, department string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanQuery,
		trace.WithAttributes(
			attribute.String(AttrDepartment, department),
		),
	)
}

// StartCommandSpan starts a span for a slash command.
func (t *Tracer) StartCommandSpan(ctx context.Context, command, userID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanCommand,
		trace.WithAttributes(
			attribute.String(AttrCommand, command),
		),
	)
	if userID != "" {
		span.SetAttributes(attribute.String(AttrUserID, userID))
	}
	return ctx, span
}

// StartSummarizeSpan starts a span for an AI summary call.
func (t *Tracer) StartSummarizeSpan(ctx context.Context, provider string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanSummarize,
		trace.WithAttributes(
			attribute.String(AttrProvider, provider),
		),
	)
}

// StartDashboardSpan starts a span for a dashboard write.
func (t *Tracer) StartDashboardSpan(ctx context.Context, launchDate string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanDashboard,
		trace.WithAttributes(
			attribute.String(AttrLaunchDate, launchDate),
		),
	)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetQueryResult sets the row and attempt counts of a department query.
func (h *SpanHelper) SetQueryResult(rows, attempts int) {
	h.span.SetAttributes(
		attribute.Int(AttrRows, rows),
		attribute.Int(AttrAttempts, attempts),
	)
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, errorType string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// GetTraceID returns the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
