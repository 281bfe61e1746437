// Package cache provides short-lived response memoization for idempotent
// provider read calls. Entries expire after a fixed TTL; mutating calls
// must never touch the cache.
package cache

import "context"

// Store is a TTL-bounded key/value store for serialized response payloads.
// Implementations must be safe for concurrent use. Writes are best-effort:
// a failed write degrades to a miss on the next read, never to an error.
type Store interface {
	// Get returns the cached payload for key, or false when absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores the payload under key for the store's TTL.
	Set(ctx context.Context, key string, value []byte)
	// Clear drops every entry owned by this store.
	Clear(ctx context.Context)
}

// Nop is a Store that caches nothing. Used when caching is disabled.
type Nop struct{}

// NewNop returns a store that never hits.
func NewNop() Nop { return Nop{} }

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }

// Set does nothing.
func (Nop) Set(context.Context, string, []byte) {}

// Clear does nothing.
func (Nop) Clear(context.Context) {}
