package application

import (
	"sync"
	"time"

	"github.com/example/studio-admin/internal/persistence"
)

// lookupCache keeps the results of booking lookups for dates outside the
// booking window for a short time. Booking mutations on a date drop its entry.
type lookupCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]lookupEntry
}

type lookupEntry struct {
	bookings  []persistence.Booking
	expiresAt time.Time
}

func newLookupCache(ttl time.Duration, maxEntries int, now func() time.Time) *lookupCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &lookupCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]lookupEntry),
	}
}

func (c *lookupCache) Get(date string) ([]persistence.Booking, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[date]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, date)
		c.mu.Unlock()
		return nil, false
	}
	return cloneBookings(entry.bookings), true
}

func (c *lookupCache) Store(date string, bookings []persistence.Booking) {
	if c == nil {
		return
	}
	cloned := cloneBookings(bookings)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[date] = lookupEntry{bookings: cloned, expiresAt: expiry}
}

// Forget drops the entry of one date.
func (c *lookupCache) Forget(date string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, date)
	c.mu.Unlock()
}

func (c *lookupCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]lookupEntry)
	c.mu.Unlock()
}

func (c *lookupCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *lookupCache) evictOneLocked() {
	var oldest string
	var oldestExpiry time.Time
	for key, entry := range c.entries {
		if oldest == "" || entry.expiresAt.Before(oldestExpiry) {
			oldest, oldestExpiry = key, entry.expiresAt
		}
	}
	delete(c.entries, oldest)
}

func cloneBookings(bookings []persistence.Booking) []persistence.Booking {
	if len(bookings) == 0 {
		return nil
	}
	out := make([]persistence.Booking, len(bookings))
	copy(out, bookings)
	return out
}
