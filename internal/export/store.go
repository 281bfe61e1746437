package export

import (
	"sort"
	"sync"
	"time"
)

type storeEntry struct {
	job       *Job
	expiresAt time.Time
}

// Store tracks live export jobs by request id so follow-up advances can
// resume instead of creating duplicate provider-side requests. Entries
// expire after a TTL; expired entries are dropped lazily on access and
// eagerly by the janitor.
type Store struct {
	mu   sync.Mutex
	jobs map[string]storeEntry
	ttl  time.Duration
	now  func() time.Time
}

// NewStore creates a job store with the given entry TTL.
func NewStore(ttl time.Duration) *Store {
	return &Store{
		jobs: make(map[string]storeEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Get returns the tracked job for a request id, if any.
func (s *Store) Get(requestID string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[requestID]
	if !ok {
		return nil, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.jobs, requestID)
		return nil, false
	}
	return entry.job, true
}

// Put tracks a job under its request id and refreshes its TTL. Jobs
// without a request id are not tracked.
func (s *Store) Put(job *Job) {
	if job == nil || job.RequestID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.RequestID] = storeEntry{job: job, expiresAt: s.now().Add(s.ttl)}
}

// Delete removes a tracked job.
func (s *Store) Delete(requestID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, requestID)
}

// Sweep drops every expired entry and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for requestID, entry := range s.jobs {
		if now.After(entry.expiresAt) {
			delete(s.jobs, requestID)
			removed++
		}
	}
	return removed
}

// Active counts tracked jobs that have not reached a terminal state.
func (s *Store) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, entry := range s.jobs {
		if !entry.job.State.Terminal() {
			active++
		}
	}
	return active
}

// Len returns the number of tracked jobs, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// RequestIDs returns the tracked request ids in stable order.
func (s *Store) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.jobs))
	for requestID := range s.jobs {
		ids = append(ids, requestID)
	}
	sort.Strings(ids)
	return ids
}
