package usecase

import (
	"sync"
	"time"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
)

// SessionStore holds the single authenticated session for the running
// process. Replacement and clearing are atomic; expiry is lazy, an expired
// session simply reads as absent until the next Set or Clear.
type SessionStore struct {
	mu      sync.RWMutex
	session *domain.Session
	now     func() time.Time
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{now: time.Now}
}

// WithClock overrides the store clock for deterministic testing.
func (s *SessionStore) WithClock(now func() time.Time) *SessionStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Set replaces the current session unconditionally.
func (s *SessionStore) Set(session domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := session
	copied.Permissions = append([]domain.Permission(nil), session.Permissions...)
	s.session = &copied
}

// Get returns a copy of the current session. The second return is false when
// no session is resident; callers that care about liveness use IsLive.
func (s *SessionStore) Get() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return domain.Session{}, false
	}
	copied := *s.session
	copied.Permissions = append([]domain.Permission(nil), s.session.Permissions...)
	return copied, true
}

// Live returns the current session only when it is present and unexpired.
func (s *SessionStore) Live() (domain.Session, bool) {
	session, ok := s.Get()
	if !ok || !session.IsLive(s.now()) {
		return domain.Session{}, false
	}
	return session, true
}

// IsLive reports whether a session is present and unexpired.
func (s *SessionStore) IsLive() bool {
	_, ok := s.Live()
	return ok
}

// Clear removes the session.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// Extend pushes the resident session's expiry to now+ttl. Returns false when
// no session is resident.
func (s *SessionStore) Extend(ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return false
	}
	s.session.Extend(s.now(), ttl)
	return true
}
