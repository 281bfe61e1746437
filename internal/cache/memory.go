package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store with lazy expiry.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates an in-memory store with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return NewMemoryWithClock(ttl, time.Now)
}

// NewMemoryWithClock creates an in-memory store with an injectable clock.
// Tests use this to control expiry deterministically.
func NewMemoryWithClock(ttl time.Duration, now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the cached payload for key, or false when absent or expired.
// Expired entries are removed on access.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !m.now().Before(entry.expiresAt) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, still := m.entries[key]; still && !m.now().Before(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Set stores the payload under key for the store's TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: m.now().Add(m.ttl),
	}
	m.mu.Unlock()
}

// Clear drops every entry.
func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
}

// Len returns the number of entries currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
