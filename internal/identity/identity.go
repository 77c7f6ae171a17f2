// Package identity provides anonymous per-conversation session identity.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	SessionHeaderName = "X-Session-ID"
	SessionQueryParam = "session_id"
)

type contextKey int

const (
	sessionIDKey contextKey = iota
	issuedKey
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// SessionIDFromContext extracts the conversation session ID from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// IssuedFromContext reports whether the session ID was generated for this request.
func IssuedFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(issuedKey).(bool)
	return v
}

// WithSessionID returns ctx carrying sessionID.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// ValidSessionID reports whether id is an acceptable client-supplied session id.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string {
	return uuid.NewString()
}

func sessionIDFromRequest(r *http.Request) (string, bool) {
	sid := strings.TrimSpace(r.Header.Get(SessionHeaderName))
	if sid == "" {
		sid = strings.TrimSpace(r.URL.Query().Get(SessionQueryParam))
	}
	if sid == "" || !ValidSessionID(sid) {
		return NewSessionID(), true
	}
	return sid, false
}

// Middleware injects the per-conversation session ID. Requests without a
// valid id get a new one, echoed back in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, issued := sessionIDFromRequest(r)
		w.Header().Set(SessionHeaderName, sessionID)

		ctx := WithSessionID(r.Context(), sessionID)
		ctx = context.WithValue(ctx, issuedKey, issued)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
