// Package llm provides the text generation backends used to voice both sides
// of the evacuation dialogue.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"dario.cat/mergo"
)

var (
	// ErrBackendUnavailable is returned when the backend cannot serve a request,
	// including while it is in failure backoff.
	ErrBackendUnavailable = errors.New("generation backend unavailable")
	// ErrBackendTimeout is returned when a request exceeds its deadline.
	ErrBackendTimeout = errors.New("generation backend timed out")
)

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Generator turns a prompt into raw model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Usage is the token count reported (or estimated) for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Config selects and tunes a backend. Zero fields take provider defaults.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Backoff     time.Duration
}

// DefaultConfig returns the defaults for a provider.
func DefaultConfig(provider string) Config {
	base := Config{
		Provider:    provider,
		Temperature: 0.7,
		MaxTokens:   128,
		Timeout:     30 * time.Second,
		Backoff:     RequestFailureBackoff,
	}
	switch provider {
	case ProviderOpenAI:
		base.Model = "gpt-4o-mini"
		base.BaseURL = "https://api.openai.com/v1"
	case ProviderGemini:
		base.Model = "gemini-2.0-flash"
	default:
		base.Provider = ProviderOllama
		base.Model = "llama3.2:latest"
		base.BaseURL = "http://localhost:11434"
	}
	return base
}

// WithDefaults fills zero fields of cfg from the provider defaults.
func WithDefaults(cfg Config) (Config, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOllama
	}
	cfg.Provider = provider
	if err := mergo.Merge(&cfg, DefaultConfig(provider)); err != nil {
		return cfg, fmt.Errorf("merge llm defaults: %w", err)
	}
	return cfg, nil
}

// New builds the client for cfg.Provider.
func New(ctx context.Context, cfg Config, tracker *TokenTracker) (*Client, error) {
	cfg, err := WithDefaults(cfg)
	if err != nil {
		return nil, err
	}

	var b backend
	switch cfg.Provider {
	case ProviderOllama:
		b = newOllamaBackend(cfg)
	case ProviderOpenAI:
		b = newOpenAIBackend(cfg)
	case ProviderGemini:
		b, err = newGeminiBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	return newClient(cfg, b, tracker), nil
}

type backend interface {
	complete(ctx context.Context, prompt string) (string, Usage, error)
}

// Client wraps a provider backend with failure backoff, error classification
// and token accounting.
type Client struct {
	provider string
	model    string
	backend  backend
	backoff  *Backoff
	tracker  *TokenTracker
	logger   *slog.Logger
}

func newClient(cfg Config, b backend, tracker *TokenTracker) *Client {
	return &Client{
		provider: cfg.Provider,
		model:    cfg.Model,
		backend:  b,
		backoff:  NewBackoff(cfg.Backoff),
		tracker:  tracker,
		logger:   slog.Default().With("component", "llm", "provider", cfg.Provider),
	}
}

// Generate sends prompt to the backend. Newlines in the reply are folded into
// spaces so the result reads as one utterance.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.backoff.Active() {
		c.logger.Warn("LLM backend is in backoff", "until", c.backoff.Until())
		return "", fmt.Errorf("%w: in backoff until %s", ErrBackendUnavailable, c.backoff.Until().Format(time.RFC3339))
	}

	start := time.Now()
	text, usage, err := c.backend.complete(ctx, prompt)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			c.backoff.Trip()
		}
		err = classify(ctx, err)
		c.logger.Error("LLM request failed", "model", c.model, "error", err, "duration", time.Since(start))
		return "", err
	}

	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		usage = Usage{InputTokens: EstimateTokenCount(prompt), OutputTokens: EstimateTokenCount(text)}
	}
	if c.tracker != nil {
		c.tracker.Record(SessionFromContext(ctx), c.model, usage)
	}
	c.logger.Info("LLM response received",
		"model", c.model,
		"duration", time.Since(start),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	return flatten(text), nil
}

// Status describes backend availability for health checks.
type Status struct {
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Available    bool      `json:"available"`
	BackoffUntil time.Time `json:"backoff_until,omitempty"`
}

// Status reports whether the client is currently accepting requests.
func (c *Client) Status() Status {
	s := Status{Provider: c.provider, Model: c.model, Available: !c.backoff.Active()}
	if !s.Available {
		s.BackoffUntil = c.backoff.Until()
	}
	return s
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrBackendTimeout) || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrBackendTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

func flatten(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
}
