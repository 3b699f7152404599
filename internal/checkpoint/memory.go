package checkpoint

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// MemoryStore is the mandatory in-memory Store backend (spec.md §4.6: "an
// in-memory backend MUST be provided"). It has no durability across process
// restarts; redisstore and mongostore provide that.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	cp        a2atypes.Checkpoint
	expiresAt time.Time // zero means no expiry
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memEntry)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, cp a2atypes.Checkpoint, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memEntry{cp: cp}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (a2atypes.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return a2atypes.Checkpoint{}, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return a2atypes.Checkpoint{}, false, nil
	}
	return e.cp, true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
