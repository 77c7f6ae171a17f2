package llm

import (
	"context"
	"sync"
	"time"
)

// TokenUsage accumulates calls and tokens for one session.
type TokenUsage struct {
	TotalCalls   int       `json:"total_calls"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Model        string    `json:"model"`
	LastUsed     time.Time `json:"last_used"`
}

// TokenTracker records token usage per session.
type TokenTracker struct {
	mu    sync.RWMutex
	usage map[string]*TokenUsage
}

// NewTokenTracker creates an empty tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{usage: make(map[string]*TokenUsage)}
}

// Record adds one call to the session's totals.
func (t *TokenTracker) Record(sessionID, model string, u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.usage[sessionID]
	if !ok {
		entry = &TokenUsage{}
		t.usage[sessionID] = entry
	}
	entry.TotalCalls++
	entry.InputTokens += u.InputTokens
	entry.OutputTokens += u.OutputTokens
	entry.Model = model
	entry.LastUsed = time.Now()
}

// Usage returns a copy of the session's totals. Unknown sessions yield a zero value.
func (t *TokenTracker) Usage(sessionID string) TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if entry, ok := t.usage[sessionID]; ok {
		return *entry
	}
	return TokenUsage{}
}

// Forget drops a session's totals.
func (t *TokenTracker) Forget(sessionID string) {
	t.mu.Lock()
	delete(t.usage, sessionID)
	t.mu.Unlock()
}

// EstimateTokenCount is a rough estimate of about four characters per token.
func EstimateTokenCount(text string) int {
	return len(text) / 4
}

type sessionKey struct{}

// WithSession tags ctx with the session whose usage a call should be billed to.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session tag, or "" when none is set.
func SessionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey{}).(string); ok {
		return v
	}
	return ""
}
