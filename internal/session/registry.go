// Package session provides the in-memory per-connection session registry.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/whizzbang/audience-builder/internal/domain"
)

// Session is one conversation scoped to a single connection. The registry
// owns the authoritative state; callers get and put snapshots.
type Session struct {
	ID         string
	State      domain.State
	LastActive time.Time
}

// Registry holds one conversation state per session identifier. Sessions are
// fully independent; the map is the only shared structure.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create registers a new session with a fresh random identifier and the
// initial conversation state.
func (r *Registry) Create() Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:         uuid.NewString(),
		State:      domain.NewState(),
		LastActive: time.Now(),
	}
	r.sessions[s.ID] = s
	slog.Info("Session created", "session_id", s.ID)
	return snapshot(s)
}

// Get returns a snapshot of the session, or false if it does not exist.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return snapshot(s), true
}

// Update persists a new state snapshot for the session and refreshes its
// activity timestamp. Updating a destroyed session is a no-op.
func (r *Registry) Update(id string, state domain.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return
	}
	s.State = state.Clone()
	s.LastActive = time.Now()
}

// Delete destroys the session and releases its state.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		slog.Info("Session destroyed", "session_id", id)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// DeleteIdle destroys sessions inactive for longer than ttl and returns how
// many were removed.
func (r *Registry) DeleteIdle(ttl time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, s := range r.sessions {
		if s.LastActive.Before(cutoff) {
			delete(r.sessions, id)
			removed++
			slog.Info("Idle session destroyed", "session_id", id)
		}
	}
	return removed
}

func snapshot(s *Session) Session {
	return Session{
		ID:         s.ID,
		State:      s.State.Clone(),
		LastActive: s.LastActive,
	}
}
