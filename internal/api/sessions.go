package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ashureev/evac-dialogue/internal/conversation"
	"github.com/ashureev/evac-dialogue/internal/identity"
	"github.com/ashureev/evac-dialogue/internal/llm"
	"github.com/ashureev/evac-dialogue/internal/store"
	"github.com/go-chi/chi/v5"
)

// deleteLocks prevents concurrent delete requests for the same session.
var deleteLocks sync.Map

// SessionHandler serves session history, transcripts and teardown.
type SessionHandler struct {
	*Handler
	window int
}

// NewSessionHandler creates a session handler. window is the default
// history size when the request has no max parameter.
func NewSessionHandler(base *Handler, window int) *SessionHandler {
	if window <= 0 {
		window = conversation.DefaultMaxTurns
	}
	return &SessionHandler{Handler: base, window: window}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/history", h.History)
			r.Get("/transcript", h.Transcript)
			r.Get("/usage", h.Usage)
			r.Delete("/", h.Delete)
		})
	})
}

func sessionParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !identity.ValidSessionID(id) {
		Error(w, http.StatusBadRequest, "invalid session id")
		return "", false
	}
	return id, true
}

// List returns live in-memory sessions and archived ones.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	archived, err := h.repo.ListSessions(r.Context())
	if err != nil {
		slog.Error("Failed to list archived sessions", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"active":   h.sessions.Sessions(),
		"archived": archived,
	})
}

// History returns the windowed in-memory history of a session.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	max := h.window
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "max must be a non-negative integer")
			return
		}
		max = n
	}

	messages := h.sessions.Messages(id, max)
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"messages":   messages,
		"history":    conversation.FormatHistory(messages),
		"total":      h.sessions.Len(id),
	})
}

// Transcript returns the archived turns of a session.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	turns, err := h.repo.ListTurns(r.Context(), id, 0)
	if err != nil {
		slog.Error("Failed to load transcript", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"turns":      turns,
	})
}

// Usage returns the token usage recorded for a session.
func (h *SessionHandler) Usage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}
	var usage llm.TokenUsage
	if h.tokens != nil {
		usage = h.tokens.Usage(id)
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"usage":      usage,
	})
}

// Delete drops a session's in-memory log, live streams, token counts and
// archived turns.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionParam(w, r)
	if !ok {
		return
	}

	lock, _ := deleteLocks.LoadOrStore(id, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Delete already in progress", "session_id", id)
		JSON(w, http.StatusOK, map[string]string{"status": "deleting"})
		return
	}
	defer func() {
		mutex.Unlock()
		deleteLocks.Delete(id)
	}()

	existed := h.sessions.Delete(id)
	if h.streams != nil {
		h.streams.CloseSession(id)
	}
	if h.tokens != nil {
		h.tokens.Forget(id)
	}

	archived, err := h.repo.DeleteSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to delete archived turns", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to delete archived turns")
		return
	}

	slog.Info("Session deleted", "session_id", id, "in_memory", existed, "archived_turns", archived)
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":         "deleted",
		"archived_turns": archived,
	})
}

// BackendStatus reports generation backend availability.
type BackendStatus interface {
	Status() llm.Status
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	backend BackendStatus
	timeout time.Duration
}

// NewHealthHandler creates a new health handler. backend may be nil.
func NewHealthHandler(repo store.Repository, backend BackendStatus) *HealthHandler {
	return &HealthHandler{repo: repo, backend: backend, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.backend != nil {
		backend := h.backend.Status()
		status["backend"] = backend
		if backend.Available {
			checks["backend"] = "ok"
		} else {
			// A backend in backoff degrades the service but does not fail it.
			checks["backend"] = "backoff"
			status["status"] = "degraded"
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
