// Package cache holds in-memory copies of remote collections.
//
// A Collection is loaded lazily on first use and afterwards only changes
// through patches applied by callers after a successful remote write. There
// is no TTL and no external invalidation.
package cache

import (
	"context"
	"slices"
	"sync"
)

// Fetcher loads the full contents of a collection.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Observer is notified about cache activity.
type Observer interface {
	CacheHit(collection string)
	CacheFetch(collection string)
}

// Patch transforms the cached rows. key extracts the row identifier.
type Patch[T any] func(rows []T, key func(T) string) []T

// Collection caches the rows of one remote collection.
type Collection[T any] struct {
	name     string
	key      func(T) string
	fetch    Fetcher[T]
	clone    func(T) T
	observer Observer

	mu     sync.RWMutex
	rows   []T
	loaded bool

	// seq counts applied patches; journal keeps those applied while a fetch
	// is in flight so the fetched rows can be brought up to date.
	seq      uint64
	inflight int
	journal  []journalEntry[T]
}

type journalEntry[T any] struct {
	seq   uint64
	patch Patch[T]
}

// Option configures a Collection.
type Option[T any] func(*Collection[T])

// WithClone deep-copies rows crossing the cache boundary.
func WithClone[T any](clone func(T) T) Option[T] {
	return func(c *Collection[T]) {
		c.clone = clone
	}
}

// WithObserver reports hits and fetches.
func WithObserver[T any](observer Observer) Option[T] {
	return func(c *Collection[T]) {
		c.observer = observer
	}
}

// New creates an unloaded collection.
func New[T any](name string, key func(T) string, fetch Fetcher[T], opts ...Option[T]) *Collection[T] {
	c := &Collection[T]{name: name, key: key, fetch: fetch}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Load returns the cached rows, fetching them once if the collection has not
// been loaded. Concurrent first loads are not coalesced: each one fetches and
// the last to finish wins. Patches applied while a fetch is in flight are
// replayed onto the fetched rows, so a write confirmed during the fetch is
// never lost.
func (c *Collection[T]) Load(ctx context.Context) ([]T, error) {
	c.mu.RLock()
	if c.loaded {
		rows := c.copyRows(c.rows)
		c.mu.RUnlock()
		if c.observer != nil {
			c.observer.CacheHit(c.name)
		}
		return rows, nil
	}
	c.mu.RUnlock()

	if c.observer != nil {
		c.observer.CacheFetch(c.name)
	}
	c.mu.Lock()
	start := c.seq
	c.inflight++
	c.mu.Unlock()

	fetched, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if err != nil {
		c.trimJournal()
		return nil, err
	}
	rows := c.copyRows(fetched)
	for _, entry := range c.journal {
		if entry.seq > start {
			rows = entry.patch(rows, c.key)
		}
	}
	c.rows = rows
	c.loaded = true
	c.trimJournal()
	return c.copyRows(c.rows), nil
}

func (c *Collection[T]) trimJournal() {
	if c.inflight == 0 {
		c.journal = nil
	}
}

// Refresh drops the loaded flag and fetches again.
func (c *Collection[T]) Refresh(ctx context.Context) ([]T, error) {
	c.Reset()
	return c.Load(ctx)
}

// Reset marks the collection as not loaded and drops its rows.
func (c *Collection[T]) Reset() {
	c.mu.Lock()
	c.rows = nil
	c.loaded = false
	c.mu.Unlock()
}

// Loaded reports whether a fetch has completed since the last Reset.
func (c *Collection[T]) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Rows returns the current rows without triggering a fetch.
func (c *Collection[T]) Rows() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyRows(c.rows)
}

// Find returns the cached row with the given id.
func (c *Collection[T]) Find(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, row := range c.rows {
		if c.key(row) == id {
			return c.copyRow(row), true
		}
	}
	var zero T
	return zero, false
}

// Apply runs a patch under the write lock. Patches on a collection that was
// never loaded still apply, so rows written before the first load are visible
// to selectors until the load replaces them.
func (c *Collection[T]) Apply(p Patch[T]) {
	if p == nil {
		return
	}
	c.mu.Lock()
	c.rows = p(c.rows, c.key)
	c.seq++
	if c.inflight > 0 {
		c.journal = append(c.journal, journalEntry[T]{seq: c.seq, patch: p})
	}
	c.mu.Unlock()
}

func (c *Collection[T]) copyRow(row T) T {
	if c.clone == nil {
		return row
	}
	return c.clone(row)
}

func (c *Collection[T]) copyRows(rows []T) []T {
	if rows == nil {
		return nil
	}
	out := make([]T, len(rows))
	for i, row := range rows {
		out[i] = c.copyRow(row)
	}
	return out
}

// Insert appends row and re-sorts with less when provided. A row already
// holding the same key is replaced, so replaying the patch is harmless.
func Insert[T any](row T, less func(a, b T) int) Patch[T] {
	return func(rows []T, key func(T) string) []T {
		id := key(row)
		rows = slices.DeleteFunc(rows, func(existing T) bool { return key(existing) == id })
		rows = append(rows, row)
		if less != nil {
			slices.SortStableFunc(rows, less)
		}
		return rows
	}
}

// Upsert replaces the row with the same key or inserts it.
func Upsert[T any](row T, less func(a, b T) int) Patch[T] {
	return func(rows []T, key func(T) string) []T {
		id := key(row)
		for i := range rows {
			if key(rows[i]) == id {
				rows[i] = row
				if less != nil {
					slices.SortStableFunc(rows, less)
				}
				return rows
			}
		}
		return Insert(row, less)(rows, key)
	}
}

// Merge applies fn to the row with the given id. Unknown ids are ignored.
func Merge[T any](id string, fn func(*T)) Patch[T] {
	return func(rows []T, key func(T) string) []T {
		for i := range rows {
			if key(rows[i]) == id {
				fn(&rows[i])
			}
		}
		return rows
	}
}

// Remove drops the row with the given id.
func Remove[T any](id string) Patch[T] {
	return RemoveWhere(func(row T, key func(T) string) bool { return key(row) == id })
}

// RemoveWhere drops every row matching pred.
func RemoveWhere[T any](pred func(row T, key func(T) string) bool) Patch[T] {
	return func(rows []T, key func(T) string) []T {
		return slices.DeleteFunc(rows, func(row T) bool { return pred(row, key) })
	}
}

// Chain applies patches in order.
func Chain[T any](patches ...Patch[T]) Patch[T] {
	return func(rows []T, key func(T) string) []T {
		for _, p := range patches {
			if p != nil {
				rows = p(rows, key)
			}
		}
		return rows
	}
}

// Sort re-sorts the rows with less.
func Sort[T any](less func(a, b T) int) Patch[T] {
	return func(rows []T, _ func(T) string) []T {
		slices.SortStableFunc(rows, less)
		return rows
	}
}
