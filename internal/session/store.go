// Package session keeps each visitor's listing pagination between requests.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/dgallion1/spacetraveling/internal/pagination"
	"github.com/google/uuid"
)

// CookieName is the cookie that carries the session id.
const CookieName = "st_session"

// Session is one visitor's listing state.
type Session struct {
	mu sync.Mutex

	ID        string
	Loader    *pagination.Loader
	CreatedAt time.Time
	updatedAt time.Time
}

// Touch marks the session as used.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = time.Now()
}

// UpdatedAt returns when the session was last used.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Store is a thread-safe in-memory session registry with TTL eviction.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create registers a new session around loader.
func (s *Store) Create(loader *pagination.Loader) *Session {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		Loader:    loader,
		CreatedAt: now,
		updatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns a live session, or nil when id is unknown or expired. An
// expired session is dropped right away instead of waiting for Cleanup.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	sess := s.sessions[id]
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	if time.Since(sess.UpdatedAt()) > s.ttl {
		s.Delete(id)
		return nil
	}
	sess.Touch()
	return sess
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Clear drops every session. Used when content changes and listings built
// from the old content no longer apply.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.sessions)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions and reports how many were removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.UpdatedAt()) > s.ttl {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
