package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ashureev/evac-dialogue/internal/config"
	"github.com/ashureev/evac-dialogue/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	personas := filepath.Join(dir, "personas.json")
	require.NoError(t, os.WriteFile(personas, []byte(`{"Bob": "Bob runs the bakery."}`), 0o600))
	return &config.Config{
		CorpusPath:    filepath.Join(dir, "missing.jsonl"),
		PersonaPath:   personas,
		HistoryWindow: 10,
		LLM:           llm.Config{Provider: llm.ProviderOllama},
		Embed:         config.EmbedConfig{Provider: "none"},
	}
}

func TestBuild_MissingCorpusFallsBackToEmpty(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	core, err := Build(context.Background(), testConfig(t), nil, logger)
	require.NoError(t, err)

	assert.Empty(t, core.Corpus.Characters())
	assert.Equal(t, []string{"bob"}, core.Personas.IDs())
	assert.True(t, core.LLM.Status().Available)
	assert.NotNil(t, core.Orchestrator)
}

func TestBuild_MissingPersonasFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.PersonaPath = filepath.Join(t.TempDir(), "nope.json")

	_, err := Build(context.Background(), cfg, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load personas")
}

func TestNewRanker(t *testing.T) {
	cfg := testConfig(t)

	r, err := NewRanker(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, r)

	cfg.Embed = config.EmbedConfig{Provider: "ollama"}
	r, err = NewRanker(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, r)

	cfg.Embed = config.EmbedConfig{Provider: "gemini"}
	_, err = NewRanker(context.Background(), cfg)
	require.Error(t, err)

	cfg.Embed = config.EmbedConfig{Provider: "word2vec"}
	_, err = NewRanker(context.Background(), cfg)
	require.Error(t, err)
}
