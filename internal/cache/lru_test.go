package cache

import (
	"strings"
	"testing"
	"time"
)

func newTestLRU(t *testing.T, ttl time.Duration) *LRU {
	t.Helper()
	c, err := NewLRU(10, 100, ttl)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestNewLRU_RejectsZeroSize(t *testing.T) {
	if _, err := NewLRU(0, 100, time.Minute); err == nil {
		t.Fatal("expected an error for a zero sized cache")
	}
}

func TestLRU_SetGetDelete(t *testing.T) {
	c := newTestLRU(t, time.Minute)

	value := []byte(`{"positions":[[0,0],[1,1]]}`)
	c.Set("layout:abc", value, 0)

	got, found := c.Get("layout:abc")
	if !found || string(got) != string(value) {
		t.Fatalf("expected %s, got %s (found=%v)", value, got, found)
	}
	if _, found := c.Get("layout:missing"); found {
		t.Error("expected a miss for an unknown key")
	}

	c.Delete("layout:abc")
	if _, found := c.Get("layout:abc"); found {
		t.Error("expected value to be deleted")
	}
}

func TestLRU_Expiration(t *testing.T) {
	c := newTestLRU(t, time.Minute)

	c.Set("short", []byte("v"), 50*time.Millisecond)
	if _, found := c.Get("short"); !found {
		t.Fatal("expected to find value immediately after set")
	}
	time.Sleep(100 * time.Millisecond)
	if _, found := c.Get("short"); found {
		t.Error("expected value to be expired")
	}
}

func TestLRU_OversizedValueIsRejected(t *testing.T) {
	c, err := NewLRU(1, 10, time.Minute)
	if err != nil {
		t.Fatalf("NewLRU: %v", err)
	}
	defer c.Close()

	c.Set("huge", []byte(strings.Repeat("x", 2<<20)), 0)
	if _, found := c.Get("huge"); found {
		t.Error("a value larger than the whole cache should not be admitted")
	}
}

func TestLRU_ReportsStatsForCollector(t *testing.T) {
	c := newTestLRU(t, time.Minute)

	c.Set("run", []byte(`{"positions":[[0,0],[1,1]]}`), 0)
	if _, found := c.Get("run"); !found {
		t.Fatal("Expected to find cached value")
	}
	c.Get("other")

	if c.Items() < 1 {
		t.Errorf("Expected at least one item, got %d", c.Items())
	}
	if c.Size() <= 0 {
		t.Errorf("Expected a positive size, got %d", c.Size())
	}
	s := c.Stats()
	if s.Hits < 1 || s.Misses < 1 {
		t.Errorf("expected a hit and a miss, got %+v", s)
	}
}

func TestKey(t *testing.T) {
	a := Key("layout", []byte(`{"nodes":3}`))
	if a != Key("layout", []byte(`{"nodes":3}`)) {
		t.Error("equal payloads should give equal keys")
	}
	if a == Key("layout", []byte(`{"nodes":4}`)) || a == Key("tree", []byte(`{"nodes":3}`)) {
		t.Error("payload and namespace should both change the key")
	}
	if !strings.HasPrefix(a, "layout:") || len(a) != len("layout:")+64 {
		t.Errorf("unexpected key shape %q", a)
	}
}
