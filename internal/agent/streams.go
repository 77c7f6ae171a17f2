package agent

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// StreamManager tracks the live auto-mode websocket of each session.
type StreamManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewStreamManager creates a new stream manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		active: make(map[string]*websocket.Conn),
	}
}

// GetActive returns the active connection for a session.
func (m *StreamManager) GetActive(sessionID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[sessionID]
}

// Register adds a connection for a session, closing any stream it replaces.
func (m *StreamManager) Register(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.active[sessionID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[sessionID] = conn
	slog.Info("Auto stream registered", "session_id", sessionID)
}

// Unregister removes a connection if it is still the session's current one.
func (m *StreamManager) Unregister(sessionID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, exists := m.active[sessionID]; exists && current == conn {
		delete(m.active, sessionID)
		slog.Info("Auto stream unregistered", "session_id", sessionID)
	}
}

// CloseSession forcefully terminates the session's stream.
func (m *StreamManager) CloseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.active[sessionID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	delete(m.active, sessionID)
	slog.Info("Auto stream closed", "session_id", sessionID)
}

// CloseExpired closes the streams of expired sessions.
func (m *StreamManager) CloseExpired(sessionIDs []string) {
	for _, id := range sessionIDs {
		m.CloseSession(id)
	}
}

// CloseAll terminates every stream, for shutdown.
func (m *StreamManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, conn := range m.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.active, sid)
	}
}

// Len returns the number of live streams.
func (m *StreamManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}
