package intent

import (
	"fmt"
	"testing"
	"time"
)

func newTestCache(max int, ttl time.Duration, now *time.Time) *Cache {
	c := NewCache(max, ttl)
	c.now = func() time.Time { return *now }
	return c
}

func TestCacheExpiresByTTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCache(4, time.Minute, &now)
	c.Put("a", Intent{Category: "x"})

	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected fresh entry")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len=%d", c.Len())
	}
}

func TestCacheEvictsExpiredBeforeRecent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCache(2, time.Minute, &now)
	c.Put("old", Intent{})
	now = now.Add(50 * time.Second)
	c.Put("mid", Intent{})
	if _, ok := c.Get("old"); !ok { // "old" becomes most recent, "mid" the LRU victim
		t.Fatalf("old missing")
	}
	now = now.Add(20 * time.Second) // "old" is now expired, "mid" is not

	c.Put("new", Intent{})
	if _, ok := c.items["old"]; ok {
		t.Fatalf("expired entry should be evicted first")
	}
	if _, ok := c.items["mid"]; !ok {
		t.Fatalf("unexpired entry should survive")
	}
}

func TestCacheEvictsLeastRecentlyAccessed(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := newTestCache(3, 0, &now)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), Intent{})
		now = now.Add(time.Second)
	}
	// k0 becomes the most recent; k1 is now the eviction candidate.
	if _, ok := c.Get("k0"); !ok {
		t.Fatalf("k0 missing")
	}
	c.Put("k3", Intent{})

	if c.Len() != 3 {
		t.Fatalf("len = %d, want 3", c.Len())
	}
	if _, ok := c.items["k1"]; ok {
		t.Fatalf("k1 should have been evicted")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if _, ok := c.items[k]; !ok {
			t.Fatalf("%s should remain", k)
		}
	}
}
