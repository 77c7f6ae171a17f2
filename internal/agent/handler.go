package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ashureev/evac-dialogue/internal/api"
	"github.com/ashureev/evac-dialogue/internal/dialogue"
	"github.com/ashureev/evac-dialogue/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// HandlerConfig tunes request limits. Zero values take defaults.
type HandlerConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxBodySize       int64
}

// Handler serves the dialogue endpoints.
type Handler struct {
	dialogue    Dialogue
	catalog     Catalog
	rateLimiter *RateLimiter
	log         ConversationLogger
	maxBody     int64
	characters  []string
}

// NewHandler creates a dialogue handler. conversationLogger may be nil.
func NewHandler(d Dialogue, catalog Catalog, conversationLogger ConversationLogger, cfg HandlerConfig) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 30
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxRequestBodySize
	}

	return &Handler{
		dialogue:    d,
		catalog:     catalog,
		rateLimiter: NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		log:         conversationLogger,
		maxBody:     cfg.MaxBodySize,
		characters:  characterIDs(catalog.IDs()),
	}
}

// characterIDs lists only catalog characters, since chat and auto reject
// anyone without a persona.
func characterIDs(ids []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// RegisterRoutes registers dialogue routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		r.Get("/persona/{name}", h.HandlePersona)
		r.Get("/characters", h.HandleCharacters)
	})
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleChat handles POST /api/chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		sessionID = identity.NewSessionID()
	}

	// Rate-limit by client address so clients cannot bypass throttling by
	// rotating session IDs.
	if !h.rateLimiter.Allow(identity.IPFromRequest(r)) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, ok := dialogue.ParseMode(req.Mode)
	if !ok {
		api.Error(w, http.StatusBadRequest, "mode must be one of interactive, interactive_start, auto")
		return
	}
	townPerson := strings.ToLower(strings.TrimSpace(req.TownPerson))
	if townPerson == "" {
		api.Error(w, http.StatusBadRequest, "townPerson is required")
		return
	}
	if _, ok := h.catalog.Get(townPerson); !ok {
		api.Error(w, http.StatusNotFound, "unknown town person")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Chat request",
		"session_id", sessionID,
		"town_person", townPerson,
		"mode", mode.Value,
		"speaker", req.Speaker,
		"input_length", len(req.UserInput),
	)

	switch mode {
	case dialogue.ModeAuto:
		h.serveAuto(w, r, sessionID, townPerson, reqID)
		return
	case dialogue.ModeInteractiveStart:
		res := h.dialogue.StartConversation(r.Context(), sessionID, townPerson)
		h.logReply(sessionID, townPerson, mode, res, reqID)
		h.writeTurn(w, res)
		return
	}

	if strings.TrimSpace(req.UserInput) != "" {
		h.log.Log(ConversationLogEvent{
			SessionID:  sessionID,
			TownPerson: townPerson,
			Channel:    "chat_http",
			Direction:  "outbound",
			EventType:  "chat_user_message",
			Speaker:    req.Speaker,
			ContentRaw: req.UserInput,
			Meta:       map[string]any{"request_id": reqID},
		})
	}
	res := h.dialogue.AdvanceTurn(r.Context(), dialogue.TurnRequest{
		SessionID:  sessionID,
		TownPerson: townPerson,
		Speaker:    req.Speaker,
		UserInput:  req.UserInput,
	})
	h.logReply(sessionID, townPerson, mode, res, reqID)
	h.writeTurn(w, res)
}

func (h *Handler) serveAuto(w http.ResponseWriter, r *http.Request, sessionID, townPerson, reqID string) {
	res := h.dialogue.RunAutoSequence(r.Context(), dialogue.AutoRequest{
		SessionID:  sessionID,
		TownPerson: townPerson,
	}, func(step dialogue.AutoStep) {
		h.logStep(sessionID, townPerson, "chat_http", step, reqID)
	})

	status := http.StatusOK
	if res.Error != "" {
		status = http.StatusBadGateway
	}
	retrieved := res.Retrieved
	if retrieved == nil {
		retrieved = []dialogue.Diagnostics{}
	}
	api.JSON(w, status, AutoResponse{
		SessionID:     sessionID,
		Transcript:    res.Transcript,
		RetrievedInfo: retrieved,
		Error:         res.Error,
	})
}

func (h *Handler) writeTurn(w http.ResponseWriter, res dialogue.TurnResult) {
	status := http.StatusOK
	if res.Error != "" {
		status = http.StatusBadGateway
	}
	if res.Diagnostics.Examples == nil {
		res.Diagnostics.Examples = []string{}
	}
	api.JSON(w, status, ChatResponse{
		SessionID:     res.SessionID,
		Speaker:       res.Speaker,
		Response:      res.Response,
		RetrievedInfo: res.Diagnostics,
		Error:         res.Error,
	})
}

func (h *Handler) logReply(sessionID, townPerson string, mode dialogue.Mode, res dialogue.TurnResult, reqID string) {
	eventType := "chat_reply"
	content := res.Response
	if res.Error != "" {
		eventType = "chat_error"
		content = res.Error
	}
	h.log.Log(ConversationLogEvent{
		SessionID:  sessionID,
		TownPerson: townPerson,
		Channel:    "chat_http",
		Direction:  "inbound",
		EventType:  eventType,
		Speaker:    res.Speaker,
		ContentRaw: content,
		Meta: map[string]any{
			"mode":           mode.Value,
			"category":       res.Diagnostics.Category,
			"stage_selected": res.Diagnostics.StageSelected,
			"request_id":     reqID,
		},
	})
}

func (h *Handler) logStep(sessionID, townPerson, channel string, step dialogue.AutoStep, reqID string) {
	h.log.Log(ConversationLogEvent{
		SessionID:  sessionID,
		TownPerson: townPerson,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "auto_step",
		Speaker:    step.Speaker,
		ContentRaw: step.Text,
		Meta: map[string]any{
			"step":       step.Index,
			"category":   step.Diagnostics.Category,
			"request_id": reqID,
		},
	})
}

// HandlePersona handles GET /api/persona/{name}.
func (h *Handler) HandlePersona(w http.ResponseWriter, r *http.Request) {
	p, ok := h.catalog.Get(chi.URLParam(r, "name"))
	if !ok {
		api.Error(w, http.StatusNotFound, "persona not found")
		return
	}
	api.JSON(w, http.StatusOK, PersonaResponse{
		ID:       p.ID,
		Name:     p.Name,
		Persona:  p.Description,
		Dialogue: p.Dialogue,
	})
}

// HandleCharacters handles GET /api/characters.
func (h *Handler) HandleCharacters(w http.ResponseWriter, r *http.Request) {
	api.JSON(w, http.StatusOK, map[string]interface{}{
		"characters": h.characters,
	})
}
