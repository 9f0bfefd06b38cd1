package cache

import (
	"testing"
	"time"
)

func TestMemory_CountsAndExpiry(t *testing.T) {
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set("a", []byte("abc"), 0)
	m.Set("b", []byte("de"), time.Second)

	if v, ok := m.Get("a"); !ok || string(v) != "abc" {
		t.Fatalf("expected abc, got %q %v", v, ok)
	}
	if _, ok := m.Get("c"); ok {
		t.Fatal("unexpected hit")
	}
	if s := m.Stats(); s.Hits != 1 || s.Misses != 1 || s.Items != 2 || s.Size != 5 {
		t.Errorf("unexpected stats %+v", s)
	}

	now = now.Add(2 * time.Second)
	if _, ok := m.Get("b"); ok {
		t.Error("expected b to expire after its own ttl")
	}
	if _, ok := m.Get("a"); !ok {
		t.Error("a should outlive b")
	}

	m.Delete("a")
	if s := m.Stats(); s.Items != 0 || s.KeysAdded != 2 {
		t.Errorf("unexpected stats after delete %+v", s)
	}
}

func TestMemory_ZeroTTLNeverExpires(t *testing.T) {
	m := NewMemory(0)
	now := time.Now()
	m.now = func() time.Time { return now }
	m.Set("k", []byte("v"), 0)
	now = now.Add(24 * time.Hour)
	if _, ok := m.Get("k"); !ok {
		t.Error("entries without a ttl should not expire")
	}
}
