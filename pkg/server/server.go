// Package server is launchbot's HTTP surface: the Slack slash command
// endpoint plus health, metrics and version endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack"

	"github.com/otherjamesbrown/launchbot/pkg/buildinfo"
	"github.com/otherjamesbrown/launchbot/pkg/chat"
	"github.com/otherjamesbrown/launchbot/pkg/logging"
	"github.com/otherjamesbrown/launchbot/pkg/observability"
)

// ServiceName identifies the service in /version and /health.
const ServiceName = "launchbot"

// Config holds HTTP server configuration.
type Config struct {
	Addr          string
	SigningSecret string
	RateLimit     RateLimitConfig
	// CommandTimeout bounds background work for one deferred command.
	CommandTimeout  time.Duration
	ShutdownTimeout time.Duration
	HealthTimeout   time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		RateLimit:       RateLimitConfig{RequestsPerSecond: 0.2, Burst: 3},
		CommandTimeout:  2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		HealthTimeout:   5 * time.Second,
	}
}

// CommandHandler runs slash commands.
type CommandHandler interface {
	Deferred(cmd chat.Command) (slack.Msg, bool)
	Handle(ctx context.Context, cmd chat.Command) slack.Msg
}

// Responder delivers a deferred reply to a slash command's response_url.
type Responder interface {
	Respond(ctx context.Context, responseURL string, msg slack.Msg) error
}

// Checker is one dependency checked by /health.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) error

// Ping calls f.
func (f CheckFunc) Ping(ctx context.Context) error { return f(ctx) }

// DetailFunc is a Checker that also reports details such as pool usage.
// Details are shown even when the check fails.
type DetailFunc func(ctx context.Context) (map[string]any, error)

// Ping calls f and drops the details.
func (f DetailFunc) Ping(ctx context.Context) error {
	_, err := f(ctx)
	return err
}

// Server serves the bot over HTTP.
type Server struct {
	cfg       Config
	handler   CommandHandler
	responder Responder
	logger    logging.Logger
	limiter   *RateLimiter
	checks    map[string]Checker
	gatherer  prometheus.Gatherer
	metrics   *observability.Metrics

	// background is the parent of every deferred command; it outlives
	// the request and is cancelled only after shutdown gives up waiting.
	background context.Context
	cancel     context.CancelFunc

	// mu orders inflight.Add against Drain: once draining is set no
	// command is added, so inflight.Wait never races an Add.
	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithCheck adds a named dependency to /health.
func WithCheck(name string, c Checker) Option {
	return func(s *Server) { s.checks[name] = c }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithMetrics counts rate-limited commands.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a server.
func New(cfg Config, handler CommandHandler, responder Responder, logger logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		handler:    handler,
		responder:  responder,
		logger:     logger,
		limiter:    NewRateLimiter(cfg.RateLimit),
		checks:     make(map[string]Checker),
		gatherer:   prometheus.DefaultGatherer,
		background: ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/version", buildinfo.Handler(ServiceName))
	r.Post("/slack/commands", s.handleCommand)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down and waits
// for deferred commands to finish posting their replies.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", logging.F("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.cancel()
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if waitErr := s.Drain(shutdownCtx); waitErr != nil {
		s.logger.Warn("deferred commands still running at shutdown", logging.Err(waitErr))
	}
	s.cancel()
	return err
}

// Drain stops accepting deferred commands and waits for the running ones.
// Commands that arrive after Drain get a restarting reply.
func (s *Server) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	return s.Wait(ctx)
}

// Wait blocks until every deferred command has finished or ctx ends.
// It does not stop new commands; use Drain for that.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithContext(r.Context())

	cmd, err := chat.ParseSlashCommand(r, s.cfg.SigningSecret)
	if err != nil {
		if errors.Is(err, chat.ErrBadSignature) {
			log.Warn("rejected slash command", logging.Err(err))
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		log.Warn("bad slash command", logging.Err(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if ok, retryAfter := s.limiter.Allow(cmd.UserID); !ok {
		s.metrics.ObserveRateLimited()
		log.Info("command rate limited",
			logging.F("user_id", cmd.UserID),
			logging.F("retry_after_ms", retryAfter.Milliseconds()),
		)
		writeJSON(w, http.StatusOK, chat.RenderRateLimited())
		return
	}

	if ack, deferred := s.handler.Deferred(cmd); deferred {
		if !s.dispatch(r.Context(), cmd) {
			log.Info("command refused during shutdown", logging.F("command", cmd.Name))
			writeJSON(w, http.StatusOK, chat.RenderRestarting())
			return
		}
		writeJSON(w, http.StatusOK, ack)
		return
	}

	writeJSON(w, http.StatusOK, s.handler.Handle(r.Context(), cmd))
}

// dispatch runs cmd in the background and posts the reply to its
// response_url. The request ID carries over for log correlation.
// It reports false, running nothing, once the server is draining.
func (s *Server) dispatch(reqCtx context.Context, cmd chat.Command) bool {
	ctx := s.background
	if id, ok := reqCtx.Value(logging.RequestIDKey).(string); ok {
		ctx = logging.WithRequestID(ctx, id)
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return false
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.inflight.Done()

		if s.cfg.CommandTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.CommandTimeout)
			defer cancel()
		}

		msg := s.handler.Handle(ctx, cmd)
		if err := s.responder.Respond(ctx, cmd.ResponseURL, msg); err != nil {
			s.logger.WithContext(ctx).Error("failed to deliver reply",
				logging.F("command", cmd.Name),
				logging.F("user_id", cmd.UserID),
				logging.Err(err),
			)
		}
	}()
	return true
}

// CheckResult is one dependency's health.
type CheckResult struct {
	Healthy   bool           `json:"healthy"`
	LatencyMs int64          `json:"latency_ms"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Service string                 `json:"service"`
	Version string                 `json:"version"`
	Checks  map[string]CheckResult `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.cfg.HealthTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.HealthTimeout)
		defer cancel()
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := HealthResponse{
		Status:  "ok",
		Service: ServiceName,
		Version: buildinfo.Get(ServiceName).Version,
		Checks:  make(map[string]CheckResult, len(names)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			start := time.Now()
			var (
				details map[string]any
				err     error
			)
			if f, ok := c.(DetailFunc); ok {
				details, err = f(ctx)
			} else {
				err = c.Ping(ctx)
			}
			res := CheckResult{Healthy: err == nil, LatencyMs: time.Since(start).Milliseconds(), Details: details}
			if err != nil {
				res.Error = err.Error()
			}
			mu.Lock()
			resp.Checks[name] = res
			mu.Unlock()
		}(name, s.checks[name])
	}
	wg.Wait()

	status := http.StatusOK
	for _, res := range resp.Checks {
		if !res.Healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
