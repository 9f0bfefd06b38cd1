// Package cache holds serialized layout results keyed by request hash.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache stores opaque byte values with a time to live.
type Cache interface {
	// Get returns the value for key if present and unexpired.
	Get(key string) ([]byte, bool)

	// Set stores value under key. A zero ttl means the cache default.
	Set(key string, value []byte, ttl time.Duration)

	// Delete removes key.
	Delete(key string)

	Stats() Stats
}

// Stats represents cache statistics.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	KeysAdded uint64 `json:"keys_added"`
	Rejected  uint64 `json:"rejected"`
	Evictions uint64 `json:"evictions"`
	Size      int64  `json:"size_bytes"`
	Items     int64  `json:"items"`
}

// Key derives a cache key from a namespace and a canonical payload, so equal
// requests share an entry regardless of how large they are.
func Key(namespace string, payload []byte) string {
	sum := sha256.Sum256(payload)
	return namespace + ":" + hex.EncodeToString(sum[:])
}
