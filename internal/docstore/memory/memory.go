// Package memory implements docstore.Store in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/studio-admin/internal/docstore"
)

// Storage keeps documents in nested maps keyed by collection path and id.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Fields
	now         func() time.Time
	newID       func() string
}

// Option customises a Storage.
type Option func(*Storage)

// WithClock overrides the clock used for server timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides generated document keys.
func WithIDGenerator(next func() string) Option {
	return func(s *Storage) {
		if next != nil {
			s.newID = next
		}
	}
}

// Open returns an empty Storage.
func Open(opts ...Option) *Storage {
	s := &Storage{
		collections: make(map[string]map[string]docstore.Fields),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Get returns a copy of the stored document.
func (s *Storage) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields, ok := s.collections[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return docstore.Document{ID: id, Fields: fields.Clone()}, nil
}

// Find scans the collection, applies filters and sorts by the requested field.
// Documents without the order field are excluded, as Firestore does.
func (s *Storage) Find(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]docstore.Document, 0, len(s.collections[q.Collection]))
	for id, fields := range s.collections[q.Collection] {
		if !matchesAll(fields, q.Where) {
			continue
		}
		if q.OrderBy != "" {
			if _, ok := fields[q.OrderBy]; !ok {
				continue
			}
		}
		docs = append(docs, docstore.Document{ID: id, Fields: fields.Clone()})
	}

	sort.Slice(docs, func(i, j int) bool {
		if q.OrderBy != "" {
			c := docstore.Compare(docs[i].Fields[q.OrderBy], docs[j].Fields[q.OrderBy])
			if c != 0 {
				if q.Direction == docstore.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// Create stores the document under a generated key.
func (s *Storage) Create(_ context.Context, collection string, fields docstore.Fields) (string, error) {
	normalized, err := docstore.NormalizeFields(fields, s.now())
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	docs := s.collectionLocked(collection)
	if _, exists := docs[id]; exists {
		return "", fmt.Errorf("memory: generated id %s already exists in %s", id, collection)
	}
	docs[id] = normalized
	return id, nil
}

// Set replaces or merges the document stored under id.
func (s *Storage) Set(_ context.Context, collection, id string, fields docstore.Fields, mode docstore.SetMode) error {
	normalized, err := docstore.NormalizeFields(fields, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collectionLocked(collection)
	existing, ok := docs[id]
	if mode == docstore.Merge && ok {
		for k, v := range normalized {
			existing[k] = v
		}
		return nil
	}
	docs[id] = normalized
	return nil
}

// Update merges fields into an existing document.
func (s *Storage) Update(_ context.Context, collection, id string, fields docstore.Fields) error {
	normalized, err := docstore.NormalizeFields(fields, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.collections[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	for k, v := range normalized {
		existing[k] = v
	}
	return nil
}

// Delete removes the document if present.
func (s *Storage) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

// Len reports the number of documents stored in a collection.
func (s *Storage) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func (s *Storage) collectionLocked(collection string) map[string]docstore.Fields {
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]docstore.Fields)
		s.collections[collection] = docs
	}
	return docs
}

func matchesAll(fields docstore.Fields, filters []docstore.Filter) bool {
	for _, f := range filters {
		if !docstore.Matches(fields, f) {
			return false
		}
	}
	return true
}
