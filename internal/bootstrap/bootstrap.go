// Package bootstrap assembles the dialogue core from configuration. It is
// shared by the HTTP server and the command line tool.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/evac-dialogue/internal/config"
	"github.com/ashureev/evac-dialogue/internal/conversation"
	"github.com/ashureev/evac-dialogue/internal/corpus"
	"github.com/ashureev/evac-dialogue/internal/dialogue"
	"github.com/ashureev/evac-dialogue/internal/llm"
	"github.com/ashureev/evac-dialogue/internal/persona"
	"github.com/ashureev/evac-dialogue/internal/prompt"
	"github.com/ashureev/evac-dialogue/internal/similarity"
)

// Core holds the wired dialogue components.
type Core struct {
	Corpus       *corpus.Corpus
	Personas     *persona.Store
	Sessions     *conversation.Store
	Tokens       *llm.TokenTracker
	LLM          *llm.Client
	Orchestrator *dialogue.Orchestrator
}

// Build loads data files and constructs the orchestrator. A corpus that fails
// to load is logged and replaced by an empty one; a persona file that fails
// to load is fatal. recorder may be nil.
func Build(ctx context.Context, cfg *config.Config, recorder dialogue.TurnRecorder, logger *slog.Logger) (*Core, error) {
	c, err := corpus.Load(cfg.CorpusPath)
	if err != nil {
		logger.Error("Failed to load dialogue corpus, continuing with an empty corpus", "path", cfg.CorpusPath, "error", err)
		c = corpus.Empty()
	} else {
		logger.Info("Dialogue corpus loaded", "path", cfg.CorpusPath, "characters", len(c.Characters()), "warnings", len(c.Warnings()))
	}

	personas, err := persona.Load(cfg.PersonaPath, cfg.DialoguePath)
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	logger.Info("Personas loaded", "count", len(personas.IDs()))

	prompts, err := prompt.NewBuilder(0)
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}

	tokens := llm.NewTokenTracker()
	client, err := llm.New(ctx, cfg.LLM, tokens)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	status := client.Status()
	logger.Info("LLM backend configured", "provider", status.Provider, "model", status.Model)

	opts := []dialogue.Option{
		dialogue.WithHistoryWindow(cfg.HistoryWindow),
		dialogue.WithTimeout(cfg.LLM.Timeout),
		dialogue.WithLogger(logger),
	}
	if recorder != nil {
		opts = append(opts, dialogue.WithRecorder(recorder))
	}
	ranker, err := NewRanker(ctx, cfg)
	if err != nil {
		logger.Warn("Example ranking disabled", "provider", cfg.Embed.Provider, "error", err)
	} else if ranker != nil {
		logger.Info("Example ranking enabled", "provider", cfg.Embed.Provider)
		opts = append(opts, dialogue.WithRanker(ranker))
	}

	sessions := conversation.NewStore()
	return &Core{
		Corpus:       c,
		Personas:     personas,
		Sessions:     sessions,
		Tokens:       tokens,
		LLM:          client,
		Orchestrator: dialogue.New(c, personas, prompts, sessions, client, opts...),
	}, nil
}

// NewRanker returns the configured example ranker, or nil when ranking is off.
func NewRanker(ctx context.Context, cfg *config.Config) (*similarity.Finder, error) {
	if !cfg.Embed.Enabled() {
		return nil, nil
	}
	var (
		e   similarity.Embedder
		err error
	)
	switch cfg.Embed.Provider {
	case "ollama":
		endpoint := ""
		if cfg.LLM.Provider == llm.ProviderOllama {
			endpoint = cfg.LLM.BaseURL
		}
		e = similarity.NewOllamaEmbedder(endpoint, cfg.Embed.Model)
	case "gemini":
		e, err = similarity.NewGenAIEmbedder(ctx, cfg.LLM.APIKey, cfg.Embed.Model)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embed provider %q", cfg.Embed.Provider)
	}
	return similarity.NewFinder(e, similarity.DefaultCacheSize)
}
