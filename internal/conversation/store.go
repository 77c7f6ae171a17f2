// Package conversation keeps the in-memory, per-session message logs.
package conversation

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/evac-dialogue/internal/domain"
)

// DefaultMaxTurns is the history window used when callers pass a non-positive size.
const DefaultMaxTurns = 5

// Store is an append-only message log per session.
//
// The map lock is held only to find or create a session. Each session has its
// own mutex, so appends to one session are linearizable while different
// sessions proceed in parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
}

type session struct {
	mu         sync.Mutex
	messages   []domain.Message
	lastActive time.Time
	removed    bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

func (s *Store) get(sessionID string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[sessionID]
}

func (s *Store) getOrCreate(sessionID string) *session {
	if sess := s.get(sessionID); sess != nil {
		return sess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	sess := &session{lastActive: s.now()}
	s.sessions[sessionID] = sess
	return sess
}

// AddMessage appends a message stamped with the current time, creating the
// session if needed.
func (s *Store) AddMessage(sessionID, speaker, content string) {
	for {
		sess := s.getOrCreate(sessionID)
		sess.mu.Lock()
		if sess.removed {
			// Lost a race with Delete or SweepIdle; retry on a fresh session.
			sess.mu.Unlock()
			continue
		}
		now := s.now()
		sess.messages = append(sess.messages, domain.Message{
			Speaker:   speaker,
			Content:   content,
			Timestamp: now,
		})
		sess.lastActive = now
		sess.mu.Unlock()
		return
	}
}

// Messages returns a copy of the last maxTurns messages, oldest first.
func (s *Store) Messages(sessionID string, maxTurns int) []domain.Message {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	sess := s.get(sessionID)
	if sess == nil {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	start := max(len(sess.messages)-maxTurns, 0)
	out := make([]domain.Message, len(sess.messages)-start)
	copy(out, sess.messages[start:])
	return out
}

// History returns the last maxTurns messages as "speaker: content" lines,
// newest last. Unknown sessions yield "".
func (s *Store) History(sessionID string, maxTurns int) string {
	return FormatHistory(s.Messages(sessionID, maxTurns))
}

// Last returns the newest message of a session.
func (s *Store) Last(sessionID string) (domain.Message, bool) {
	msgs := s.Messages(sessionID, 1)
	if len(msgs) == 0 {
		return domain.Message{}, false
	}
	return msgs[0], true
}

// Len returns the total number of messages in a session, ignoring any window.
func (s *Store) Len(sessionID string) int {
	sess := s.get(sessionID)
	if sess == nil {
		return 0
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return len(sess.messages)
}

// Sessions returns the known session ids, sorted.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Delete drops a session. It reports whether the session existed.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	sess.mu.Lock()
	sess.removed = true
	sess.mu.Unlock()
	delete(s.sessions, sessionID)
	return true
}

// SweepIdle removes sessions with no activity for longer than idle and
// returns their ids.
func (s *Store) SweepIdle(idle time.Duration) []string {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []string
	for id, sess := range s.sessions {
		sess.mu.Lock()
		if sess.lastActive.Before(cutoff) {
			sess.removed = true
			expired = append(expired, id)
			delete(s.sessions, id)
		}
		sess.mu.Unlock()
	}
	sort.Strings(expired)
	return expired
}

// FormatHistory renders messages one per line as "speaker: content".
func FormatHistory(msgs []domain.Message) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Speaker + ": " + m.Content
	}
	return strings.Join(lines, "\n")
}

// MessageCount approximates the number of turns in a formatted history by
// counting lines. It is bounded by the window the history was read with.
func MessageCount(history string) int {
	if history == "" {
		return 0
	}
	return strings.Count(history, "\n") + 1
}
