package ttlstore

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Expired entries are dropped lazily on
// access and swept periodically so an idle key set doesn't grow unbounded.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time

	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if deadline, ok := m.entries[key]; ok && now.Before(deadline) {
		return false, nil
	}

	m.entries[key] = now.Add(ttl)
	m.maybeSweepLocked(now)
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if m.now().After(deadline) {
		delete(m.entries, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// maybeSweepLocked removes expired entries once the map grows past a
// threshold. Called with m.mu held.
func (m *Memory) maybeSweepLocked(now time.Time) {
	if len(m.entries) < 1024 {
		return
	}
	for key, deadline := range m.entries {
		if now.After(deadline) {
			delete(m.entries, key)
		}
	}
}
