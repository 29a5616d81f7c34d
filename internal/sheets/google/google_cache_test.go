package google

import (
	"context"
	"testing"
	"time"
)

func TestRowCacheServesLookups(t *testing.T) {
	c := &Client{cacheValidDuration: time.Minute}

	c.mu.Lock()
	c.rowIndex = map[string]int{"e1": 2, "e2": 3}
	c.cachedRowCount = 3
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	// svc is nil: a cache miss would panic, so these must be served from the cache.
	row, err := c.findRow(context.Background(), "e2")
	if err != nil || row != 3 {
		t.Fatalf("findRow(e2) = %d, %v", row, err)
	}
	row, err = c.findRow(context.Background(), "unknown")
	if err != nil || row != 0 {
		t.Fatalf("findRow(unknown) = %d, %v", row, err)
	}
}

func TestRowCacheExpiration(t *testing.T) {
	c := &Client{cacheValidDuration: 100 * time.Millisecond}

	c.mu.Lock()
	isValid := time.Now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if isValid {
		t.Error("cache should start expired")
	}

	c.mu.Lock()
	c.rowIndex = map[string]int{"e1": 2}
	c.cachedRowCount = 10
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	time.Sleep(150 * time.Millisecond)

	c.mu.Lock()
	isValid = time.Now().Before(c.cacheExpiresAt)
	c.mu.Unlock()
	if isValid {
		t.Error("cache should be expired after TTL")
	}
}

func TestInvalidateRowCache(t *testing.T) {
	c := &Client{cacheValidDuration: 10 * time.Minute}

	c.mu.Lock()
	c.rowIndex = map[string]int{"e1": 2}
	c.cachedRowCount = 42
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	c.mu.Unlock()

	c.invalidateRowCache()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rowIndex != nil || c.cachedRowCount != 0 {
		t.Errorf("cache not cleared: %v %d", c.rowIndex, c.cachedRowCount)
	}
	if time.Now().Before(c.cacheExpiresAt) {
		t.Error("cache should be expired after invalidation")
	}
}
