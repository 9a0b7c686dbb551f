// Package ratelimit implements a fixed-window request counter guarding the
// sensitive routes. Counters live behind a Store so a single-instance
// deployment can run on the in-memory map while multi-instance deployments
// share a Postgres table with atomic increment-with-expiry semantics.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store counts hits per client key within a fixed window. Incr returns the
// counter value after this hit: 1 means a fresh window.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int, error)
}

// highWaterMark triggers a sweep of expired windows in the memory store.
// Eviction is lazy; under the mark, stale entries just sit there.
const highWaterMark = 10_000

type memoryEntry struct {
	count     int
	windowEnd time.Time
}

// MemoryStore is the single-process Store. Increments are serialized by a
// mutex, so counts are exact within one instance and best-effort across a
// fleet, which is acceptable for local and dev deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Incr counts one hit for key, resetting the counter when its window has
// rolled over.
func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) > highWaterMark {
		s.sweepLocked(now)
	}

	e, ok := s.entries[key]
	if !ok || !now.Before(e.windowEnd) {
		s.entries[key] = &memoryEntry{count: 1, windowEnd: now.Add(window)}
		return 1, nil
	}
	e.count++
	return e.count, nil
}

func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, e := range s.entries {
		if !now.Before(e.windowEnd) {
			delete(s.entries, key)
		}
	}
}

// Len reports the tracked-entry count. Test hook.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
