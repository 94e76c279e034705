package dashboard

import (
	"testing"
	"time"
)

func newFrozenCache(ttl time.Duration) (*Cache, *time.Time) {
	cache := NewCacheWithTTL(ttl)
	now := time.Now()
	cache.now = func() time.Time { return now }
	return cache, &now
}

func TestGetReturnsEntryWithinTTL(t *testing.T) {
	cache, now := newFrozenCache(60 * time.Second)
	cache.Set("p1", Summary{ProjectID: "p1"})

	*now = now.Add(59*time.Second + 999*time.Millisecond)
	if _, ok := cache.Get("p1"); !ok {
		t.Fatal("entry just inside the TTL should be a hit")
	}
}

func TestEntryExpiresAtExactTTL(t *testing.T) {
	cache, now := newFrozenCache(60 * time.Second)
	cache.Set("p1", Summary{ProjectID: "p1"})

	// The boundary is exclusive: exactly TTL old is already expired.
	*now = now.Add(60 * time.Second)
	if _, ok := cache.Get("p1"); ok {
		t.Fatal("entry exactly TTL old should be expired")
	}

	// The expired read evicted it; even rolling time back yields a miss.
	*now = now.Add(-30 * time.Second)
	if _, ok := cache.Get("p1"); ok {
		t.Fatal("expired entry should have been evicted on read")
	}
}

func TestSetRestartsTTL(t *testing.T) {
	cache, now := newFrozenCache(60 * time.Second)
	cache.Set("p1", Summary{ProjectID: "p1"})

	*now = now.Add(50 * time.Second)
	cache.Set("p1", Summary{ProjectID: "p1"})

	*now = now.Add(50 * time.Second)
	if _, ok := cache.Get("p1"); !ok {
		t.Fatal("re-set entry should still be valid 50s after the second Set")
	}
}

func TestReturnedSummaryIsACopy(t *testing.T) {
	cache, _ := newFrozenCache(60 * time.Second)
	cache.Set("p1", Summary{
		ProjectID: "p1",
		Sessions:  []SessionSummary{{SessionID: "s1", Name: "original"}},
	})

	got, _ := cache.Get("p1")
	got.Sessions[0].Name = "tampered"

	again, _ := cache.Get("p1")
	if again.Sessions[0].Name != "original" {
		t.Error("mutating a returned summary changed the cached entry")
	}
}

func TestStoredSummaryIsACopy(t *testing.T) {
	cache, _ := newFrozenCache(60 * time.Second)
	sessions := []SessionSummary{{SessionID: "s1", Name: "original"}}
	cache.Set("p1", Summary{ProjectID: "p1", Sessions: sessions})

	sessions[0].Name = "tampered"

	got, _ := cache.Get("p1")
	if got.Sessions[0].Name != "original" {
		t.Error("mutating the caller's slice changed the cached entry")
	}
}

func TestInvalidate(t *testing.T) {
	cache, _ := newFrozenCache(60 * time.Second)
	cache.Set("p1", Summary{ProjectID: "p1"})
	cache.Set("p2", Summary{ProjectID: "p2"})

	cache.Invalidate("p1")
	if _, ok := cache.Get("p1"); ok {
		t.Error("invalidated entry should be gone")
	}
	if _, ok := cache.Get("p2"); !ok {
		t.Error("other entries should survive a single invalidation")
	}

	cache.InvalidateAll()
	if _, ok := cache.Get("p2"); ok {
		t.Error("InvalidateAll should drop everything")
	}

	// Unknown projects are fine to invalidate.
	cache.Invalidate("unknown")
}
