// Package usecase contains the orchestration core: conversation state,
// prompt assembly, and the two-call tool-execution loop.
package usecase

import (
	"sync"
	"time"

	"courier-ai/internal/domain"
)

// SessionStore is the conversation history boundary. Implementations must
// be safe for concurrent use; History returns a copy, never a live view.
type SessionStore interface {
	History(sessionKey string) []domain.Message
	Append(sessionKey string, msgs ...domain.Message)
	Trim(sessionKey string, maxLen int)
}

// session holds one conversation's retained messages.
type session struct {
	mu         sync.RWMutex
	msgs       []domain.Message
	lastActive time.Time
}

// truncate applies FIFO eviction down to max messages.
func (s *session) truncate(max int) {
	if max > 0 && len(s.msgs) > max {
		s.msgs = s.msgs[len(s.msgs)-max:]
	}
}

// SessionManager is the in-memory SessionStore. Sessions are created
// implicitly on first use and reaped when idle past a configured age.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

// NewSessionManager creates an empty in-memory store.
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*session)}
}

func (m *SessionManager) get(sessionKey string) *session {
	m.mu.RLock()
	s, ok := m.sessions[sessionKey]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.sessions[sessionKey]; ok {
		return s
	}
	s = &session{lastActive: time.Now()}
	m.sessions[sessionKey] = s
	return s
}

// History returns a copy of the session's retained messages. Unknown
// sessions yield an empty history, not an error.
func (m *SessionManager) History(sessionKey string) []domain.Message {
	m.mu.RLock()
	s, ok := m.sessions[sessionKey]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Append adds messages to the session, creating it if needed.
func (m *SessionManager) Append(sessionKey string, msgs ...domain.Message) {
	s := m.get(sessionKey)
	s.mu.Lock()
	s.msgs = append(s.msgs, msgs...)
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// Trim applies FIFO eviction down to maxLen messages.
func (m *SessionManager) Trim(sessionKey string, maxLen int) {
	m.mu.RLock()
	s, ok := m.sessions[sessionKey]
	m.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.truncate(maxLen)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapStale removes sessions idle longer than maxAge and returns how many
// were removed. Candidates are collected under the read lock, re-checked
// under the write lock, so an in-flight Append never loses messages.
func (m *SessionManager) ReapStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	m.mu.RLock()
	var stale []string
	for key, s := range m.sessions {
		s.mu.RLock()
		if s.lastActive.Before(cutoff) {
			stale = append(stale, key)
		}
		s.mu.RUnlock()
	}
	m.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	reaped := 0
	m.mu.Lock()
	for _, key := range stale {
		s, ok := m.sessions[key]
		if !ok {
			continue
		}
		s.mu.RLock()
		idle := s.lastActive.Before(cutoff)
		s.mu.RUnlock()
		if idle {
			delete(m.sessions, key)
			reaped++
		}
	}
	m.mu.Unlock()
	return reaped
}

var _ SessionStore = (*SessionManager)(nil)
