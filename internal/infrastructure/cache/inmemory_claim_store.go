package cache

import (
	"context"
	"sync"
	"time"

	"github.com/clientpulse/backend/internal/domain/shared"
)

type claimEntry struct {
	expiresAt time.Time
}

// InMemoryClaimStore implements BatchClaimer with a process-local map.
// Claims held here do not coordinate across worker instances.
type InMemoryClaimStore struct {
	mu        sync.Mutex
	claims    map[string]claimEntry
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryClaimStore creates the store and starts its expiry sweep.
func NewInMemoryClaimStore() *InMemoryClaimStore {
	store := &InMemoryClaimStore{
		claims:   make(map[string]claimEntry),
		stopChan: make(chan struct{}),
	}

	store.wg.Add(1)
	go store.cleanupLoop()

	return store
}

// Acquire attempts to take the claim for a stage run with a TTL.
// Returns true if the claim was newly acquired, false if it is still held.
func (s *InMemoryClaimStore) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, exists := s.claims[key]; exists && time.Now().Before(c.expiresAt) {
		return false, nil
	}

	s.claims[key] = claimEntry{
		expiresAt: time.Now().Add(ttl),
	}

	return true, nil
}

// Release drops a held claim so the next run does not wait for expiry.
// Releasing a claim that already lapsed is a no-op.
func (s *InMemoryClaimStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.claims, key)
	return nil
}

// Close stops the cleanup goroutine. Safe to call repeatedly.
func (s *InMemoryClaimStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemoryClaimStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup sweeps lapsed claims out of the map.
func (s *InMemoryClaimStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, c := range s.claims {
		if now.After(c.expiresAt) {
			delete(s.claims, key)
		}
	}
}

// Size reports the number of held claims.
func (s *InMemoryClaimStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

var _ shared.BatchClaimer = (*InMemoryClaimStore)(nil)
