package cache

import (
	"context"
	"sync"
	"time"

	"recommend-workers/internal/models"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source; used by tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if !entry.Fresh(s.now(), s.ttl) {
		s.mu.Lock()
		if current, still := s.entries[key]; still && current == entry {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return entry, true
}

func (s *MemoryStore) Put(_ context.Context, key string, candidates []models.Candidate) {
	copied := make([]models.Candidate, len(candidates))
	copy(copied, candidates)

	s.mu.Lock()
	s.entries[key] = &Entry{Key: key, Candidates: copied, FetchedAt: s.now()}
	s.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
