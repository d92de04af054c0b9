// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Session is a connected player's gatekeeper state.
type Session struct {
	ID            ulid.ULID // unique per connection
	Identity      Identity
	Authenticated bool
	ConnectedAt   time.Time
}

// SessionRegistry tracks connected players and which of them have proven
// their identity. It lives only in memory: a restart starts empty, and
// verified identities need no entry to count as authenticated.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Track starts a new session for the identity, replacing any previous one,
// and returns its id. The new session is unauthenticated.
func (r *SessionRegistry) Track(identity Identity) ulid.ULID {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:          ulid.Make(),
		Identity:    identity,
		ConnectedAt: time.Now(),
	}
	r.sessions[identity.ID] = s
	return s.ID
}

// MarkAuthenticated flags the identity's session as authenticated. A player
// without a tracked session gets a bare authenticated entry.
func (r *SessionRegistry) MarkAuthenticated(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		s = &Session{
			ID:          ulid.Make(),
			Identity:    Identity{ID: id},
			ConnectedAt: time.Now(),
		}
		r.sessions[id] = s
	}
	s.Authenticated = true
}

// IsAuthenticated returns true for verified identities, and otherwise for
// players whose session has been marked authenticated.
func (r *SessionRegistry) IsAuthenticated(identity Identity) bool {
	if identity.Verified {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[identity.ID]
	return ok && s.Authenticated
}

// IsCurrent reports whether sessionID is still the identity's live session.
func (r *SessionRegistry) IsCurrent(id uuid.UUID, sessionID ulid.ULID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return ok && s.ID == sessionID
}

// End drops the identity's session if sessionID is still the live one. A
// session that has already been replaced by a newer connection is left
// alone and End returns false.
func (r *SessionRegistry) End(id uuid.UUID, sessionID ulid.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.ID != sessionID {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Username returns the display name of a connected player.
func (r *SessionRegistry) Username(id uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok || s.Identity.Username == "" {
		return "", false
	}
	return s.Identity.Username, true
}

// Get returns a copy of the identity's session, or nil if none exists.
func (r *SessionRegistry) Get(id uuid.UUID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// Count returns the number of tracked sessions and how many are
// authenticated.
func (r *SessionRegistry) Count() (total, authenticated int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		total++
		if s.Authenticated {
			authenticated++
		}
	}
	return total, authenticated
}
