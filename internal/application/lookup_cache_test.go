package application

import (
	"sync"
	"testing"
	"time"

	"github.com/example/studio-admin/internal/persistence"
)

func TestLookupCacheStoresAndReturnsCopies(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newLookupCache(time.Minute, 4, func() time.Time { return current })

	original := []persistence.Booking{{ID: "b1", UserName: "Ada"}}
	cache.Store("2024-05-20", original)

	// Mutating the original slice should not affect the cached copy.
	original[0].UserName = "mutated"

	cached, ok := cache.Get("2024-05-20")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached[0].UserName != "Ada" {
		t.Fatalf("expected cached booking to remain unchanged, got %s", cached[0].UserName)
	}

	cached[0].UserName = "changed"
	again, _ := cache.Get("2024-05-20")
	if again[0].UserName != "Ada" {
		t.Fatalf("expected cache to return independent copy, got %s", again[0].UserName)
	}
}

func TestLookupCacheExpiresAndForgets(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newLookupCache(time.Second, 4, func() time.Time { return current })

	cache.Store("2024-05-20", []persistence.Booking{{ID: "b1"}})
	cache.Store("2024-05-21", []persistence.Booking{{ID: "b2"}})
	cache.Forget("2024-05-21")
	if _, ok := cache.Get("2024-05-21"); ok {
		t.Fatalf("expected forgotten entry to be gone")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("2024-05-20"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestLookupCacheEvictsOldest(t *testing.T) {
	current := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newLookupCache(time.Minute, 2, func() time.Time { return current })

	cache.Store("a", nil)
	current = current.Add(time.Second)
	cache.Store("b", nil)
	current = current.Add(time.Second)
	cache.Store("c", nil)

	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if _, ok := cache.Get("c"); !ok {
		t.Fatalf("expected newest entry to be kept")
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	locks := newKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("users/u1/2024-03")
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
	if locks.size() != 0 {
		t.Fatalf("expected idle keys to be released, got %d", locks.size())
	}
}
