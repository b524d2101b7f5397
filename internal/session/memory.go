// Package session provides disambiguation state stores with TTL semantics.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
)

// MemoryStore is a thread-safe in-process session store. It backs the
// community tier and serves as the failover target when the external
// store is unreachable. Expired entries are swept opportunistically on
// each access since no background timer is assumed.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	counters map[string]*counterEntry
}

type memoryEntry struct {
	session   *domain.DisambiguationSession
	expiresAt time.Time
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		counters: make(map[string]*counterEntry),
	}
}

// GetSession returns the live session for key, or nil if absent/expired.
func (s *MemoryStore) GetSession(ctx context.Context, key string) (*domain.DisambiguationSession, error) {
	if key == "" {
		return nil, fmt.Errorf("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	entry, ok := s.sessions[key]
	if !ok {
		return nil, nil
	}
	return entry.session, nil
}

// PutSession stores a session with the given TTL.
func (s *MemoryStore) PutSession(ctx context.Context, key string, sess *domain.DisambiguationSession, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	s.sessions[key] = &memoryEntry{
		session:   sess,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// DeleteSession removes a session.
func (s *MemoryStore) DeleteSession(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()

	delete(s.sessions, key)
	return nil
}

// IncrementUsage atomically increments a usage counter. The window starts
// on first increment and the count resets when it elapses.
func (s *MemoryStore) IncrementUsage(ctx context.Context, key string, window time.Duration) (int64, error) {
	if key == "" {
		return 0, fmt.Errorf("counter key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.counters[key]
	if !ok || now.After(entry.expiresAt) {
		s.counters[key] = &counterEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
		return 1, nil
	}

	entry.count++
	return entry.count, nil
}

// Ping reports store health.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close clears the store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*memoryEntry)
	s.counters = make(map[string]*counterEntry)
	return nil
}

// sweepLocked drops expired sessions and counters. Callers hold s.mu.
func (s *MemoryStore) sweepLocked() {
	now := time.Now()
	for k, e := range s.sessions {
		if now.After(e.expiresAt) {
			delete(s.sessions, k)
		}
	}
	for k, e := range s.counters {
		if now.After(e.expiresAt) {
			delete(s.counters, k)
		}
	}
}
