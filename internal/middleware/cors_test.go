package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveCORS(origins []string, method, origin string) *httptest.ResponseRecorder {
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(method, "/api/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCORSAllowedOrigin(t *testing.T) {
	rr := serveCORS([]string{"http://localhost:5173"}, http.MethodPost, "http://localhost:5173")
	if rr.Code != http.StatusTeapot {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("missing allow-origin")
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("explicit origin should allow credentials")
	}
	if got := rr.Header().Get("Access-Control-Expose-Headers"); got != "X-Session-ID" {
		t.Fatalf("expose headers = %q", got)
	}
}

func TestCORSWildcardWithoutCredentials(t *testing.T) {
	rr := serveCORS([]string{"*"}, http.MethodGet, "https://elsewhere.example")
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://elsewhere.example" {
		t.Fatalf("wildcard should echo origin")
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("wildcard must not allow credentials")
	}
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	rr := serveCORS([]string{"http://localhost:5173"}, http.MethodGet, "https://evil.example")
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed")
	}
}

func TestCORSPreflight(t *testing.T) {
	rr := serveCORS([]string{"http://localhost:5173"}, http.MethodOptions, "http://localhost:5173")
	if rr.Code != http.StatusOK {
		t.Fatalf("preflight status = %d", rr.Code)
	}
}
