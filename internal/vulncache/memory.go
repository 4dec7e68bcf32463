package vulncache

import (
	"context"
	"sync"
	"time"

	"github.com/depscan/depscan/pkg/models"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore keeps entries in process. Values are held serialized so callers
// never share slices with the cache.
type MemoryStore struct {
	// Now is the clock used for expiry; defaults to time.Now.
	Now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}

	return time.Now()
}

func (s *MemoryStore) Get(_ context.Context, key models.PackageKey) ([]models.Vulnerability, bool, error) {
	k := key.String()

	s.mu.RLock()
	entry, ok := s.entries[k]
	s.mu.RUnlock()

	if !ok || !entry.expiresAt.After(s.now()) {
		return nil, false, nil
	}

	vulns, err := decode(entry.value)
	if err != nil {
		return nil, false, &Error{Op: "get", Key: k, Err: err}
	}

	return vulns, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key models.PackageKey, vulns []models.Vulnerability, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	k := key.String()
	value, err := encode(vulns)
	if err != nil {
		return &Error{Op: "set", Key: k, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		s.entries = make(map[string]memoryEntry)
	}
	s.entries[k] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}

	return nil
}

// Len returns the number of entries held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
