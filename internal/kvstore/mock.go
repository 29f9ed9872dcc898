package kvstore

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	counter int64
	expiry  time.Time
}

// Mock is an in-memory Store backed by a generic expiring key-value map, so
// both the rate limiter and idempotency guard can run against it in tests
// without Redis.
type Mock struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewMock returns an empty in-memory store using the real wall clock.
func NewMock() *Mock {
	return &Mock{entries: map[string]*entry{}, now: time.Now}
}

// NewMockWithClock returns an in-memory store driven by a caller-supplied
// clock, for deterministic window-expiry tests.
func NewMockWithClock(now func() time.Time) *Mock {
	return &Mock{entries: map[string]*entry{}, now: now}
}

func (m *Mock) expired(e *entry) bool {
	return !e.expiry.IsZero() && !m.now().Before(e.expiry)
}

func (m *Mock) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || m.expired(e) {
		e = &entry{}
		if ttl > 0 {
			e.expiry = m.now().Add(ttl)
		}
		m.entries[key] = e
	}
	e.counter++
	return e.counter, nil
}

func (m *Mock) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || m.expired(e) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Mock) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !m.expired(e) {
		return false, nil
	}
	e := &entry{value: value}
	if ttl > 0 {
		e.expiry = m.now().Add(ttl)
	}
	m.entries[key] = e
	return true, nil
}

func (m *Mock) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &entry{value: value}
	if ttl > 0 {
		e.expiry = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Mock) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Ping always succeeds, satisfying the health sidecar's KVPinger without a
// real Redis connection.
func (m *Mock) Ping(ctx context.Context) error {
	return nil
}