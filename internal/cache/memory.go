package cache

import (
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an unbounded map cache with exact hit counts. Tests use it where
// ristretto's asynchronous admission would make assertions flaky.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
	added   uint64
}

// NewMemory returns an empty cache. A zero defaultTTL never expires.
func NewMemory(defaultTTL time.Duration) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), ttl: defaultTTL, now: time.Now}
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if ok && !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		ok = false
	}
	if !ok {
		m.misses++
		return nil, false
	}
	m.hits++
	return e.value, true
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.added++
	m.mu.Unlock()
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var size int64
	for _, e := range m.entries {
		size += int64(len(e.value))
	}
	return Stats{
		Hits:      m.hits,
		Misses:    m.misses,
		KeysAdded: m.added,
		Size:      size,
		Items:     int64(len(m.entries)),
	}
}
