package session

import (
	"sync"

	"github.com/hupe1980/agentdeck/core"
)

// InMemoryStore is a volatile history store keeping sessions in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Returned histories are copies.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Content
	max      int
}

// NewInMemoryStore constructs an empty in‑memory session store. maxContents
// bounds the history kept per session (0 keeps everything).
func NewInMemoryStore(maxContents int) *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]core.Content), max: maxContents}
}

// History returns the session's contents, oldest first. Unknown sessions
// have an empty history.
func (s *InMemoryStore) History(sessionID string) []core.Content {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.sessions[sessionID]
	out := make([]core.Content, len(h))
	copy(out, h)
	return out
}

// Append adds contents to the session, creating it lazily.
func (s *InMemoryStore) Append(sessionID string, contents ...core.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.sessions[sessionID], contents...)
	if s.max > 0 && len(h) > s.max {
		h = append([]core.Content(nil), h[len(h)-s.max:]...)
	}
	s.sessions[sessionID] = h
}

// Delete drops a session.
func (s *InMemoryStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of known sessions.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
