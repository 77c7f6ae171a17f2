// Package api provides session and health HTTP handlers for the dialogue API.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/evac-dialogue/internal/conversation"
	"github.com/ashureev/evac-dialogue/internal/llm"
	"github.com/ashureev/evac-dialogue/internal/store"
)

// StreamCloser closes live streams attached to a session.
type StreamCloser interface {
	CloseSession(sessionID string)
}

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions *conversation.Store
	streams  StreamCloser
	tokens   *llm.TokenTracker
}

// NewHandler creates a new Handler with common dependencies. streams and
// tokens may be nil.
func NewHandler(repo store.Repository, sessions *conversation.Store, streams StreamCloser, tokens *llm.TokenTracker) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		streams:  streams,
		tokens:   tokens,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
