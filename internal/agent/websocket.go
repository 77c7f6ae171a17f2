package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/evac-dialogue/internal/dialogue"
	"github.com/ashureev/evac-dialogue/internal/identity"
	"github.com/coder/websocket"
)

// AutoStreamHandler streams auto-mode steps over a websocket as they are
// generated.
type AutoStreamHandler struct {
	dialogue       Dialogue
	catalog        Catalog
	streams        *StreamManager
	log            ConversationLogger
	allowedOrigins []string
	isDev          bool
}

// NewAutoStreamHandler creates a new websocket handler.
func NewAutoStreamHandler(d Dialogue, catalog Catalog, streams *StreamManager, conversationLogger ConversationLogger, allowedOrigins []string, isDev bool) *AutoStreamHandler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	return &AutoStreamHandler{
		dialogue:       d,
		catalog:        catalog,
		streams:        streams,
		log:            conversationLogger,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// ServeHTTP implements http.Handler for websocket upgrade.
func (h *AutoStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		sessionID = identity.NewSessionID()
	}
	townPerson := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("townPerson")))
	slog.Info("Auto stream request", "session_id", sessionID, "town_person", townPerson, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if _, ok := h.catalog.Get(townPerson); !ok {
		http.Error(w, `{"error": "unknown town person"}`, http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "sequence ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	h.streams.Register(sessionID, ws)
	defer h.streams.Unregister(sessionID, ws)

	// CloseRead cancels ctx when the client goes away or the stream is closed.
	ctx := ws.CloseRead(r.Context())

	res := h.dialogue.RunAutoSequence(ctx, dialogue.AutoRequest{
		SessionID:  sessionID,
		TownPerson: townPerson,
	}, func(step dialogue.AutoStep) {
		h.log.Log(ConversationLogEvent{
			SessionID:  sessionID,
			TownPerson: townPerson,
			Channel:    "auto_ws",
			Direction:  "inbound",
			EventType:  "auto_step",
			Speaker:    step.Speaker,
			ContentRaw: step.Text,
			Meta:       map[string]any{"step": step.Index, "category": step.Diagnostics.Category},
		})
		if err := writeJSON(ctx, ws, StreamMessage{Type: StreamStep, SessionID: sessionID, Step: &step}); err != nil {
			slog.Debug("Failed to send auto step", "error", err, "session_id", sessionID)
		}
	})

	final := StreamMessage{Type: StreamDone, SessionID: sessionID, Transcript: res.Transcript}
	if res.Error != "" {
		final = StreamMessage{Type: StreamError, SessionID: sessionID, Transcript: res.Transcript, Error: res.Error}
	}
	if err := writeJSON(ctx, ws, final); err != nil {
		slog.Debug("Failed to send final auto message", "error", err, "session_id", sessionID)
	}
	slog.Info("Auto stream finished", "session_id", sessionID, "steps", len(res.Steps), "error", res.Error)
}

func (h *AutoStreamHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
