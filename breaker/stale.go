package breaker

import (
	"sync"
	"time"
)

// staleKeyPrefix namespaces consumer credentials inside the stale store.
const staleKeyPrefix = "consumer_secret:"

// StaleDataInfo describes one stale-store entry for observability.
type StaleDataInfo struct {
	Key        string
	AgeMinutes float64
}

type staleEntry struct {
	value    any
	storedAt time.Time
}

// staleStore holds the last successfully-produced value per consumer key.
// Entries are written only on successful operation completion and pruned
// lazily against the tolerance on read.
type staleStore struct {
	mu        sync.Mutex
	tolerance time.Duration
	entries   map[string]staleEntry
}

func newStaleStore(tolerance time.Duration) *staleStore {
	return &staleStore{
		tolerance: tolerance,
		entries:   make(map[string]staleEntry),
	}
}

func (s *staleStore) put(key string, value any) {
	s.mu.Lock()
	s.entries[key] = staleEntry{value: value, storedAt: time.Now()}
	s.mu.Unlock()
}

// get returns the stored value only while its age is within tolerance;
// entries past tolerance are dropped on the way out.
func (s *staleStore) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > s.tolerance {
		delete(s.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (s *staleStore) info() []StaleDataInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]StaleDataInfo, 0, len(s.entries))
	for key, entry := range s.entries {
		infos = append(infos, StaleDataInfo{
			Key:        key,
			AgeMinutes: time.Since(entry.storedAt).Minutes(),
		})
	}
	return infos
}

func (s *staleStore) clear() {
	s.mu.Lock()
	s.entries = make(map[string]staleEntry)
	s.mu.Unlock()
}
