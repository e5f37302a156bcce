package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store used in tests and as the fail-open
// fallback when Redis is unavailable at startup. Expired entries are
// dropped lazily on lookup.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time)}
}

func (m *Memory) SetRevoked(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[jti] = time.Now().Add(ttl)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline, ok := m.entries[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(deadline) {
		delete(m.entries, jti)
		return false, nil
	}
	return true, nil
}
