package memory

import (
	"context"
	"sync"

	"github.com/machoalfa/eclesia-access/internal/core/domain"
	"github.com/machoalfa/eclesia-access/internal/repository"
)

// ProfileStore keeps profiles in memory. It backs the local provider mode in
// development and doubles as a test double elsewhere.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

// NewProfileStore builds an empty in-memory profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]domain.Profile)}
}

// Put stores or replaces the profile keyed by subject ID.
func (s *ProfileStore) Put(profile domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.SubjectID] = profile
}

// GetProfile returns the profile for the subject or repository.ErrNotFound.
func (s *ProfileStore) GetProfile(_ context.Context, subjectID string) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[subjectID]
	if !ok {
		return nil, repository.ErrNotFound
	}

	copy := profile
	return &copy, nil
}
