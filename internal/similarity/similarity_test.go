package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordEmbedder maps text onto fixed axes so similarity is predictable.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls map[string]int
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	if k.calls == nil {
		k.calls = make(map[string]int)
	}
	k.calls[text]++
	k.mu.Unlock()

	lower := strings.ToLower(text)
	v := make([]float32, 3)
	if strings.Contains(lower, "fire") {
		v[0] = 1
	}
	if strings.Contains(lower, "work") {
		v[1] = 1
	}
	if strings.Contains(lower, "dog") {
		v[2] = 1
	}
	return v, nil
}

func (k *keywordEmbedder) Name() string { return "keyword" }

func TestMostSimilar(t *testing.T) {
	e := &keywordEmbedder{}
	f, err := NewFinder(e, 0)
	require.NoError(t, err)

	candidates := []string{"I need to finish my work.", "Is the fire close?", "Where is my dog?"}
	best, score, err := f.MostSimilar(context.Background(), "the fire is spreading", candidates)
	require.NoError(t, err)
	assert.Equal(t, "Is the fire close?", best)
	assert.InDelta(t, 1.0, score, 1e-9)

	_, _, err = f.MostSimilar(context.Background(), "my dog", candidates)
	require.NoError(t, err)
	assert.Equal(t, 1, e.calls["Where is my dog?"], "candidate embeddings are cached")
}

func TestRankKeepsOrderForTies(t *testing.T) {
	f, err := NewFinder(&keywordEmbedder{}, 0)
	require.NoError(t, err)

	ranked, err := f.Rank(context.Background(), "work", []string{"a", "b", "more work"})
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "more work", ranked[0].Text)
	assert.Equal(t, "a", ranked[1].Text)
	assert.Equal(t, "b", ranked[2].Text)
}

func TestNoCandidates(t *testing.T) {
	f, err := NewFinder(&keywordEmbedder{}, 0)
	require.NoError(t, err)
	_, _, err = f.MostSimilar(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestCosineSimilarity(t *testing.T) {
	s, err := CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, s, 1e-9)

	s, err = CosineSimilarity([]float32{1, 1}, []float32{2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1, s, 1e-9)

	s, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL+"/", "")
	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, v)
	assert.Equal(t, "ollama:nomic-embed-text", e.Name())
}

func TestGenAIEmbedderRequiresKey(t *testing.T) {
	_, err := NewGenAIEmbedder(context.Background(), "", "")
	assert.Error(t, err)
}
