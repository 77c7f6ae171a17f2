package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaGenerate(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2:latest", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, "say hi", req.Prompt)

		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Response:        "Bob: Who is this?\nWhat do you want?",
			Done:            true,
			PromptEvalCount: 12,
			EvalCount:       7,
		})
	})

	tracker := NewTokenTracker()
	client, err := NewOllama(Config{BaseURL: srv.URL}, tracker)
	require.NoError(t, err)

	ctx := WithSession(context.Background(), "sess-1")
	out, err := client.Generate(ctx, "say hi")
	require.NoError(t, err)
	assert.Equal(t, "Bob: Who is this? What do you want?", out)

	usage := tracker.Usage("sess-1")
	assert.Equal(t, 1, usage.TotalCalls)
	assert.Equal(t, 12, usage.InputTokens)
	assert.Equal(t, 7, usage.OutputTokens)
}

func TestOllamaEstimatesTokensWhenMissing(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "12345678", Done: true})
	})

	tracker := NewTokenTracker()
	client, err := NewOllama(Config{BaseURL: srv.URL}, tracker)
	require.NoError(t, err)

	_, err = client.Generate(WithSession(context.Background(), "s"), "1234567890123456")
	require.NoError(t, err)
	assert.Equal(t, 4, tracker.Usage("s").InputTokens)
	assert.Equal(t, 2, tracker.Usage("s").OutputTokens)
}

func TestFailureTripsBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := newOllamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	client, err := NewOllama(Config{BaseURL: srv.URL, Backoff: time.Minute}, nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.False(t, client.Status().Available)

	_, err = client.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "second call should be rejected without a request")
}

func TestIncompleteResponse(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "partial", Done: false})
	})
	client, err := NewOllama(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestTimeoutIsClassified(t *testing.T) {
	release := make(chan struct{})
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	client, err := NewOllama(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.Generate(ctx, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendTimeout)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Operator: Please leave now."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
		}`))
	})

	tracker := NewTokenTracker()
	client, err := NewOpenAI(Config{BaseURL: srv.URL + "/v1", APIKey: "test-key"}, tracker)
	require.NoError(t, err)

	out, err := client.Generate(WithSession(context.Background(), "s"), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Operator: Please leave now.", out)
	assert.Equal(t, 20, tracker.Usage("s").InputTokens)
}

func TestWithDefaults(t *testing.T) {
	cfg, err := WithDefaults(Config{Model: "qwen2.5"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, cfg.Provider)
	assert.Equal(t, "qwen2.5", cfg.Model)
	assert.Equal(t, "http://localhost:11434", cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	cfg, err = WithDefaults(Config{Provider: "OpenAI"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "telepathy"}, nil)
	require.Error(t, err)

	_, err = New(context.Background(), Config{Provider: ProviderGemini}, nil)
	require.Error(t, err, "gemini without an API key")
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, classify(ctx, context.DeadlineExceeded), ErrBackendTimeout)
	assert.ErrorIs(t, classify(ctx, errors.New("boom")), ErrBackendUnavailable)
	wrapped := classify(ctx, ErrBackendTimeout)
	assert.Equal(t, ErrBackendTimeout, wrapped)
}

func TestBackoff(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBackoff(30 * time.Second)
	b.now = func() time.Time { return now }

	assert.False(t, b.Active())
	b.Trip()
	assert.True(t, b.Active())
	now = now.Add(31 * time.Second)
	assert.False(t, b.Active())

	disabled := NewBackoff(0)
	disabled.Trip()
	assert.False(t, disabled.Active())
}

func TestGeminiRequiresAPIKey(t *testing.T) {
	_, err := NewGemini(context.Background(), Config{}, nil)
	require.Error(t, err)

	client, err := NewGemini(context.Background(), Config{APIKey: "test-key"}, nil)
	require.NoError(t, err)
	status := client.Status()
	assert.Equal(t, ProviderGemini, status.Provider)
	assert.Equal(t, "gemini-2.0-flash", status.Model)
}
