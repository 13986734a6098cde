package chat

import (
	"sync"

	"github.com/avesely/opsdeck/internal/domain"
)

// historySuffixLimit bounds how much history feeds prompt construction. The
// full history keeps growing until cleared; only this suffix reaches the model.
const historySuffixLimit = 20

// Session holds the ordered message history for one connection.
type Session struct {
	ID string

	mu      sync.Mutex
	history []domain.ChatMessage
}

// Append adds a message to the history.
func (s *Session) Append(msg domain.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// Len returns the current history length.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// LastN returns a copy of the last n messages.
func (s *Session) LastN(n int) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.history) {
		n = len(s.history)
	}
	out := make([]domain.ChatMessage, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// TruncateTo drops every message appended after position mark. Used to roll
// a cancelled turn back to its pre-turn state.
func (s *Session) TruncateTo(mark int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mark < 0 {
		mark = 0
	}
	if mark < len(s.history) {
		s.history = s.history[:mark]
	}
}

// Clear empties the history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Registry maps connection IDs to their sessions. A connection only ever
// touches its own entry; the registry lock covers only map access.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for a connection, creating it lazily.
func (r *Registry) GetOrCreate(connID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		return s
	}
	s := &Session{ID: connID}
	r.sessions[connID] = s
	return s
}

// Remove destroys a connection's session.
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
