package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/doeshing/termai-go/internal/domain"
)

func entry(key, content string) domain.CacheEntry {
	return domain.CacheEntry{
		Key:      key,
		Response: domain.AnalysisResponse{Content: content},
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	c := NewMemory(time.Minute, 10)
	c.Set(entry("k", "value"))
	got, ok := c.Get("k")
	if !ok || got.Response.Content != "value" {
		t.Fatalf("expected hit, got ok=%v entry=%+v", ok, got)
	}
}

func TestTTLExpiry(t *testing.T) {
	c := NewMemory(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(entry("k", "value"))
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry should be served before TTL")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry must never be served past TTL")
	}
	stats := c.Stats()
	if stats.Evictions == 0 {
		t.Fatalf("expired access should count as eviction, stats=%+v", stats)
	}
}

func TestEarliestFirstEviction(t *testing.T) {
	c := NewMemory(time.Minute, 3)
	for i := 0; i < 4; i++ {
		c.Set(entry(fmt.Sprintf("k%d", i), "v"))
	}
	if _, ok := c.Get("k0"); ok {
		t.Fatalf("earliest entry should have been evicted")
	}
	if _, ok := c.Get("k3"); !ok {
		t.Fatalf("latest entry should remain")
	}
	if c.Stats().Size != 3 {
		t.Fatalf("cache size should stay at cap, got %d", c.Stats().Size)
	}
}

func TestHitMissCounters(t *testing.T) {
	c := NewMemory(time.Minute, 10)
	c.Set(entry("k", "v"))
	c.Get("k")
	c.Get("absent")

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected counters %+v", stats)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	c := NewMemory(time.Minute, 10)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(entry("old", "v"))
	now = now.Add(2 * time.Minute)
	c.Set(entry("fresh", "v"))

	if removed := c.Sweep(); removed != 1 {
		t.Fatalf("expected one swept entry, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatalf("fresh entry must survive the sweep")
	}
}

func TestSetOverwriteRefreshesPosition(t *testing.T) {
	c := NewMemory(time.Minute, 2)
	c.Set(entry("a", "1"))
	c.Set(entry("b", "2"))
	c.Set(entry("a", "3")) // re-insert moves a to the back
	c.Set(entry("c", "4")) // evicts b, the earliest remaining insertion

	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if got, ok := c.Get("a"); !ok || got.Response.Content != "3" {
		t.Fatalf("a should hold the refreshed value, got %+v ok=%v", got, ok)
	}
}
