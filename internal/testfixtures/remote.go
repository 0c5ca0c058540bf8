package testfixtures

import (
	"context"
	"errors"
	"sync"

	"github.com/example/studio-admin/internal/docstore"
	"github.com/example/studio-admin/internal/docstore/memory"
)

// ErrRemoteUnavailable is the default failure injected by RemoteStore.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// Call records one operation received by RemoteStore.
type Call struct {
	Op         string
	Collection string
	ID         string
	Fields     docstore.Fields
	Mode       docstore.SetMode
	Query      docstore.Query
}

type failure struct {
	op, collection, id string
	err                error
}

// RemoteStore is an in-memory document store that records calls, fails on
// demand and can hold queries open to simulate slow network reads.
type RemoteStore struct {
	*memory.Storage

	mu       sync.Mutex
	calls    []Call
	failures []failure
	holds    map[string]chan struct{}
	entered  chan string
}

// NewRemoteStore returns a store with deterministic keys and clock.
func NewRemoteStore(clock *Clock, ids *IDGenerator) *RemoteStore {
	if clock == nil {
		clock = NewClock(ReferenceTime())
	}
	if ids == nil {
		ids = NewIDGenerator("doc")
	}
	return &RemoteStore{
		Storage: memory.Open(memory.WithClock(clock.NowFunc()), memory.WithIDGenerator(ids.NextFunc())),
		holds:   make(map[string]chan struct{}),
		entered: make(chan string, 64),
	}
}

// FailOn makes matching operations return err. Empty op, collection or id
// match anything. A nil err uses ErrRemoteUnavailable.
func (s *RemoteStore) FailOn(op, collection, id string, err error) {
	if err == nil {
		err = ErrRemoteUnavailable
	}
	s.mu.Lock()
	s.failures = append(s.failures, failure{op: op, collection: collection, id: id, err: err})
	s.mu.Unlock()
}

// Heal removes every injected failure.
func (s *RemoteStore) Heal() {
	s.mu.Lock()
	s.failures = nil
	s.mu.Unlock()
}

// Hold delays Find replies on collection until the returned release func is
// called. The reply is the snapshot taken before waiting, so writes made while
// held are not part of it. Entered receives the collection name each time a
// Find starts waiting.
func (s *RemoteStore) Hold(collection string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.holds[collection] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.holds, collection)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Entered signals Finds that are waiting on a Hold.
func (s *RemoteStore) Entered() <-chan string {
	return s.entered
}

// Calls returns a copy of the recorded calls.
func (s *RemoteStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count reports recorded calls matching op and collection.
func (s *RemoteStore) Count(op, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Op == op && (collection == "" || c.Collection == collection) {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (s *RemoteStore) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

func (s *RemoteStore) record(c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	for _, f := range s.failures {
		if (f.op == "" || f.op == c.Op) && (f.collection == "" || f.collection == c.Collection) && (f.id == "" || f.id == c.ID) {
			return f.err
		}
	}
	return nil
}

func (s *RemoteStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := s.record(Call{Op: "get", Collection: collection, ID: id}); err != nil {
		return docstore.Document{}, err
	}
	return s.Storage.Get(ctx, collection, id)
}

func (s *RemoteStore) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if err := s.record(Call{Op: "find", Collection: q.Collection, Query: q}); err != nil {
		return nil, err
	}
	docs, err := s.Storage.Find(ctx, q)
	s.mu.Lock()
	hold := s.holds[q.Collection]
	s.mu.Unlock()
	if hold != nil {
		s.entered <- q.Collection
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return docs, err
}

func (s *RemoteStore) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	if err := s.record(Call{Op: "create", Collection: collection, Fields: fields.Clone()}); err != nil {
		return "", err
	}
	return s.Storage.Create(ctx, collection, fields)
}

func (s *RemoteStore) Set(ctx context.Context, collection, id string, fields docstore.Fields, mode docstore.SetMode) error {
	if err := s.record(Call{Op: "set", Collection: collection, ID: id, Fields: fields.Clone(), Mode: mode}); err != nil {
		return err
	}
	return s.Storage.Set(ctx, collection, id, fields, mode)
}

func (s *RemoteStore) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if err := s.record(Call{Op: "update", Collection: collection, ID: id, Fields: fields.Clone()}); err != nil {
		return err
	}
	return s.Storage.Update(ctx, collection, id, fields)
}

func (s *RemoteStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.record(Call{Op: "delete", Collection: collection, ID: id}); err != nil {
		return err
	}
	return s.Storage.Delete(ctx, collection, id)
}
