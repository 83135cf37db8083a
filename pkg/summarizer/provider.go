// Package summarizer asks a language model for a readiness analysis of a
// launch batch. Summaries are advisory: every failure degrades to a short
// notice and never fails the surrounding command.
package summarizer

import (
	"context"
	"fmt"
	"time"
)

// Provider generates text completions.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai-gpt-4o-mini").
	Name() string

	// Complete sends a completion request and returns the raw response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest is a single system + user prompt exchange.
type CompletionRequest struct {
	SystemPrompt string
	Prompt       string
	Temperature  float32
	MaxTokens    int
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Model        string
	Latency      time.Duration
	TokensUsed   TokenUsage
}

// TokenUsage reports token consumption when the provider returns it.
type TokenUsage struct {
	Prompt     int
	Completion int
	Total      int
}

// ProviderError represents an error from a completion provider.
type ProviderError struct {
	Code    ProviderErrorCode
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ProviderErrorCode identifies the type of provider error.
type ProviderErrorCode string

const (
	ErrTimeout      ProviderErrorCode = "timeout"
	ErrUnavailable  ProviderErrorCode = "unavailable"
	ErrRateLimit    ProviderErrorCode = "rate_limit"
	ErrUnauthorized ProviderErrorCode = "unauthorized"
	ErrParseFailure ProviderErrorCode = "parse_failure"
	ErrEmpty        ProviderErrorCode = "empty_response"
)

// Supported provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures the provider.
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

// DefaultConfig returns the summarizer defaults.
func DefaultConfig() Config {
	return Config{
		Provider:    ProviderOpenAI,
		BaseURL:     "https://api.openai.com",
		Model:       "gpt-4o-mini",
		Timeout:     30 * time.Second,
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// Enabled reports whether an API key is configured.
func (c Config) Enabled() bool {
	return c.APIKey != ""
}

// NewProvider builds the configured provider. It returns nil, nil when no
// API key is set.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(cfg), nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}
