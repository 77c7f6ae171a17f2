//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/evac-dialogue/internal/conversation"
	"github.com/ashureev/evac-dialogue/internal/domain"
	"github.com/ashureev/evac-dialogue/internal/llm"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	mu      sync.Mutex
	turns   map[string][]domain.Turn
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{turns: make(map[string][]domain.Turn)}
}

func (f *fakeRepo) SaveTurn(_ context.Context, turn *domain.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	turn.ID = int64(len(f.turns[turn.SessionID]) + 1)
	f.turns[turn.SessionID] = append(f.turns[turn.SessionID], *turn)
	return nil
}

func (f *fakeRepo) ListTurns(_ context.Context, sessionID string, _ int) ([]domain.Turn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Turn{}, f.turns[sessionID]...), nil
}

func (f *fakeRepo) ListSessions(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := []string{}
	for id := range f.turns {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeRepo) DeleteSession(_ context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.turns[sessionID]))
	delete(f.turns, sessionID)
	return n, nil
}

func (f *fakeRepo) CleanupOlderThan(context.Context, time.Duration) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(context.Context) error                                    { return f.pingErr }
func (f *fakeRepo) Close() error                                                  { return nil }

type fakeStreams struct {
	mu     sync.Mutex
	closed []string
}

func (f *fakeStreams) CloseSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, sessionID)
}

type fakeBackend struct{ status llm.Status }

func (f fakeBackend) Status() llm.Status { return f.status }

func newTestRouter(repo *fakeRepo, sessions *conversation.Store, streams *fakeStreams, tokens *llm.TokenTracker) http.Handler {
	r := chi.NewRouter()
	NewSessionHandler(NewHandler(repo, sessions, streams, tokens), 5).RegisterRoutes(r)
	return r
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestHistoryWindow(t *testing.T) {
	sessions := conversation.NewStore()
	for _, m := range []string{"one", "two", "three"} {
		sessions.AddMessage("s1", "Operator", m)
	}
	router := newTestRouter(newFakeRepo(), sessions, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/history?max=2", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["history"] != "Operator: two\nOperator: three" {
		t.Fatalf("history = %q", body["history"])
	}
	if body["total"] != float64(3) {
		t.Fatalf("total = %v", body["total"])
	}
}

func TestHistoryRejectsBadMax(t *testing.T) {
	router := newTestRouter(newFakeRepo(), conversation.NewStore(), nil, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/history?max=lots", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTranscript(t *testing.T) {
	repo := newFakeRepo()
	_ = repo.SaveTurn(context.Background(), &domain.Turn{SessionID: "s1", Speaker: "Operator", Content: "Hello Bob"})
	router := newTestRouter(repo, conversation.NewStore(), nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/transcript", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	turns, _ := decode(t, rr)["turns"].([]interface{})
	if len(turns) != 1 {
		t.Fatalf("turns = %v", turns)
	}
}

func TestDeleteSession(t *testing.T) {
	repo := newFakeRepo()
	_ = repo.SaveTurn(context.Background(), &domain.Turn{SessionID: "s1", Speaker: "Operator", Content: "Hello"})
	sessions := conversation.NewStore()
	sessions.AddMessage("s1", "Operator", "Hello")
	streams := &fakeStreams{}
	tokens := llm.NewTokenTracker()
	tokens.Record("s1", "m", llm.Usage{InputTokens: 3})
	router := newTestRouter(repo, sessions, streams, tokens)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["status"] != "deleted" || body["archived_turns"] != float64(1) {
		t.Fatalf("body = %v", body)
	}
	if sessions.Len("s1") != 0 {
		t.Fatalf("in-memory session not dropped")
	}
	if len(streams.closed) != 1 || streams.closed[0] != "s1" {
		t.Fatalf("streams closed = %v", streams.closed)
	}
	if tokens.Usage("s1").InputTokens != 0 {
		t.Fatalf("token usage not forgotten")
	}
}

func TestDeleteRejectsInvalidID(t *testing.T) {
	router := newTestRouter(newFakeRepo(), conversation.NewStore(), nil, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/api/sessions/bad%20id", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestUsage(t *testing.T) {
	tokens := llm.NewTokenTracker()
	tokens.Record("s1", "llama", llm.Usage{InputTokens: 10, OutputTokens: 4})
	router := newTestRouter(newFakeRepo(), conversation.NewStore(), nil, tokens)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/usage", nil))
	usage, _ := decode(t, rr)["usage"].(map[string]interface{})
	if usage["input_tokens"] != float64(10) || usage["total_calls"] != float64(1) {
		t.Fatalf("usage = %v", usage)
	}
}

func TestHealth(t *testing.T) {
	cases := []struct {
		name       string
		pingErr    error
		backend    BackendStatus
		wantCode   int
		wantStatus string
	}{
		{"healthy", nil, fakeBackend{llm.Status{Available: true}}, http.StatusOK, "healthy"},
		{"backend backoff", nil, fakeBackend{llm.Status{Available: false}}, http.StatusOK, "degraded"},
		{"database down", errors.New("closed"), nil, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakeRepo()
			repo.pingErr = tc.pingErr
			r := chi.NewRouter()
			NewHealthHandler(repo, tc.backend).RegisterHealth(r)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rr.Code != tc.wantCode {
				t.Fatalf("status code = %d, want %d", rr.Code, tc.wantCode)
			}
			if got := decode(t, rr)["status"]; got != tc.wantStatus {
				t.Fatalf("status = %v, want %s", got, tc.wantStatus)
			}
		})
	}
}
