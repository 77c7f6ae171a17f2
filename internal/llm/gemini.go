package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

type geminiBackend struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
}

func newGeminiBackend(ctx context.Context, cfg Config) (*geminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini backend requires an API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &geminiBackend{
		client:      client,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
	}, nil
}

// NewGemini returns a client for the Gemini API.
func NewGemini(ctx context.Context, cfg Config, tracker *TokenTracker) (*Client, error) {
	cfg.Provider = ProviderGemini
	cfg, err := WithDefaults(cfg)
	if err != nil {
		return nil, err
	}
	b, err := newGeminiBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newClient(cfg, b, tracker), nil
}

func (g *geminiBackend) complete(ctx context.Context, prompt string) (string, Usage, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: g.maxTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("gemini generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", Usage{}, errors.New("gemini response has no text")
	}
	var usage Usage
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return text, usage, nil
}
