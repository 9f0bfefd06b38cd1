package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// LRU is a cost-bounded cache on ristretto. Entry cost is the value size in
// bytes, so MaxCost caps memory rather than entry count.
type LRU struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration
}

// NewLRU creates a cache holding up to maxSizeMB of values. maxEntries sizes
// the admission counters; it is a hint, not a hard cap.
func NewLRU(maxSizeMB, maxEntries int64, defaultTTL time.Duration) (*LRU, error) {
	if maxSizeMB <= 0 {
		return nil, fmt.Errorf("cache: size must be positive, got %d MB", maxSizeMB)
	}
	// ristretto wants about ten counters per expected entry
	numCounters := maxEntries * 10
	if numCounters < 1000 {
		numCounters = 1000
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        numCounters,
		MaxCost:            maxSizeMB << 20,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &LRU{cache: c, defaultTTL: defaultTTL}, nil
}

func (c *LRU) Get(key string) ([]byte, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	return b, ok
}

// Set stores value and waits for it to become visible, so a Compute that
// follows immediately sees its own result.
func (c *LRU) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.cache.SetWithTTL(key, value, int64(len(value)), ttl)
	c.cache.Wait()
}

func (c *LRU) Delete(key string) { c.cache.Del(key) }

func (c *LRU) Stats() Stats {
	m := c.cache.Metrics
	return Stats{
		Hits:      m.Hits(),
		Misses:    m.Misses(),
		KeysAdded: m.KeysAdded(),
		Rejected:  m.SetsRejected(),
		Evictions: m.KeysEvicted(),
		Size:      int64(m.CostAdded() - m.CostEvicted()),
		Items:     int64(m.KeysAdded() - m.KeysEvicted()),
	}
}

// Size returns the approximate number of bytes held.
func (c *LRU) Size() int64 { return c.Stats().Size }

// Items returns the approximate number of entries held.
func (c *LRU) Items() int64 { return c.Stats().Items }

// Evictions returns the number of entries evicted since creation.
func (c *LRU) Evictions() uint64 { return c.Stats().Evictions }

// Close stops ristretto's background goroutines.
func (c *LRU) Close() { c.cache.Close() }
