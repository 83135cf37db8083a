package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/otherjamesbrown/launchbot/pkg/launch"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
)

// Notices returned in place of an analysis.
const (
	NoticeDisabled    = "AI analysis is not configured."
	NoticeUnavailable = "AI analysis is unavailable right now. The department figures above are complete."
)

// Summarizer turns batch statuses into a free-text analysis.
type Summarizer struct {
	provider    Provider
	timeout     time.Duration
	maxTokens   int
	temperature float32
	logger      logging.Logger
	metrics     *observability.Metrics
	tracer      *observability.Tracer
}

// Option customizes a Summarizer.
type Option func(*Summarizer)

// WithMetrics records a counter per summary attempt.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Summarizer) { s.metrics = m }
}

// WithTracer records a span per summary.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Summarizer) { s.tracer = t }
}

// New creates a summarizer. A nil provider yields NoticeDisabled for every call.
func New(provider Provider, cfg Config, logger logging.Logger, opts ...Option) *Summarizer {
	if logger == nil {
		logger = logging.Global()
	}
	s := &Summarizer{
		provider:    provider,
		timeout:     cfg.Timeout,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a provider is configured.
func (s *Summarizer) Enabled() bool {
	return s != nil && s.provider != nil
}

// Summarize returns the model's analysis of statuses. The returned text is
// never empty: on failure it is a notice and err says why.
func (s *Summarizer) Summarize(ctx context.Context, launchDate string, statuses []launch.DepartmentStatus) (string, error) {
	if !s.Enabled() {
		return NoticeDisabled, nil
	}

	name := s.provider.Name()
	if s.tracer != nil {
		var span observability.Span
		ctx, span = s.tracer.StartSummarizeSpan(ctx, name)
		defer span.End()
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.provider.Complete(ctx, CompletionRequest{
		SystemPrompt: SystemPrompt,
		Prompt:       BuildPrompt(launchDate, statuses),
		Temperature:  s.temperature,
		MaxTokens:    s.maxTokens,
	})
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = &ProviderError{Code: ErrEmpty, Message: "empty completion"}
	}
	s.metrics.ObserveSummary(name, err)

	log := s.logger.WithContext(ctx)
	if err != nil {
		code := "unknown"
		var pe *ProviderError
		if errors.As(err, &pe) {
			code = string(pe.Code)
		}
		log.Warn("summary failed", logging.F("provider", name), logging.F("error_code", code), logging.Err(err))
		return NoticeUnavailable, err
	}

	log.Debug("summary generated",
		logging.F("provider", name),
		logging.F("latency_ms", resp.Latency.Milliseconds()),
		logging.F("tokens", resp.TokensUsed.Total))
	return strings.TrimSpace(resp.Content), nil
}
