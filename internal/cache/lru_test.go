package cache

import (
	"testing"
	"time"
)

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be present")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted as least recently used")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a: got %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size: got %d", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("j", "w")
	now = now.Add(2 * time.Minute)
	c.Set("fresh", "x")

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected k to be expired")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired removed %d, want 1", n)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatal("fresh entry should survive")
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("u1|month|2024-01", 1)
	c.Set("u1|today", 2)
	c.Set("u2|today", 3)

	if n := c.DeletePrefix("u1|"); n != 2 {
		t.Fatalf("DeletePrefix removed %d, want 2", n)
	}
	if _, ok := c.Get("u2|today"); !ok {
		t.Fatal("u2 entry should remain")
	}
}

func TestManagerSweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[int](10, time.Second)
	c.now = func() time.Time { return now }
	c.Set("a", 1)
	now = now.Add(time.Hour)

	m := NewManager(nil)
	m.Register("test", c)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	m.Stop()
}

func TestLRUCacheReportsEvictions(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](2, time.Minute)
	c.now = func() time.Time { return now }

	var evicted []string
	c.OnEvict(func(key, _ string) {
		evicted = append(evicted, key)
		// Callbacks run unlocked.
		_ = c.Size()
	})

	c.Set("a", "1")
	c.Set("b", "2")
	c.Set("c", "3") // pushes out a
	c.Delete("b")   // explicit, not reported

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("c"); ok {
		t.Fatal("c should have expired")
	}

	c.Set("d", "4")
	now = now.Add(2 * time.Minute)
	c.CleanExpired()

	want := []string{"a", "c", "d"}
	if len(evicted) != len(want) {
		t.Fatalf("evicted = %v, want %v", evicted, want)
	}
	for i := range want {
		if evicted[i] != want[i] {
			t.Fatalf("evicted = %v, want %v", evicted, want)
		}
	}
}
