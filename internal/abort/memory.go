package abort

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps abort flags in process. Expired flags are swept on
// every write.
type MemoryStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Set flags token until ttl elapses.
func (s *MemoryStore) Set(_ context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.expires {
		if !now.Before(exp) {
			delete(s.expires, k)
		}
	}
	s.expires[token] = now.Add(ttl)
	return nil
}

// IsSet reports whether token is flagged and not expired.
func (s *MemoryStore) IsSet(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.expires[token]
	return ok && s.now().Before(exp), nil
}

// Delete clears the flag for token.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.expires, token)
	return nil
}

// Len returns the number of stored flags, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}
