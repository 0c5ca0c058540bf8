package cache

import (
	"cmp"
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

type row struct {
	ID   string
	Name string
	Tags []string
}

func rowKey(r row) string { return r.ID }

func byName(a, b row) int { return cmp.Compare(a.Name, b.Name) }

func cloneRow(r row) row {
	r.Tags = append([]string(nil), r.Tags...)
	return r
}

type countingObserver struct {
	hits, fetches atomic.Int64
}

func (o *countingObserver) CacheHit(string)   { o.hits.Add(1) }
func (o *countingObserver) CacheFetch(string) { o.fetches.Add(1) }

func TestCollectionLoadOnce(t *testing.T) {
	var calls atomic.Int64
	observer := &countingObserver{}
	c := New("courses", rowKey, func(context.Context) ([]row, error) {
		calls.Add(1)
		return []row{{ID: "a", Name: "Aerial"}}, nil
	}, WithObserver[row](observer))

	ctx := context.Background()
	first, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one fetch, got %d", calls.Load())
	}
	if len(first) != 1 || len(second) != 1 || !reflect.DeepEqual(first[0], second[0]) {
		t.Fatalf("expected identical rows, got %v and %v", first, second)
	}
	if observer.hits.Load() != 1 || observer.fetches.Load() != 1 {
		t.Fatalf("unexpected observer counts hits=%d fetches=%d", observer.hits.Load(), observer.fetches.Load())
	}

	if _, err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("Refresh must fetch again, got %d fetches", calls.Load())
	}
}

func TestCollectionConcurrentFirstLoadFetchesTwice(t *testing.T) {
	var calls atomic.Int64
	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	c := New("bookings", rowKey, func(context.Context) ([]row, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return []row{{ID: "b1"}}, nil
	})

	var wg sync.WaitGroup
	results := make([][]row, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, err := c.Load(context.Background())
			if err != nil {
				t.Errorf("Load failed: %v", err)
			}
			results[i] = rows
		}(i)
	}
	<-entered
	<-entered
	close(release)
	wg.Wait()

	if calls.Load() != 2 {
		t.Fatalf("expected two fetches for concurrent first loads, got %d", calls.Load())
	}
	for i, rows := range results {
		if len(rows) != 1 || rows[0].ID != "b1" {
			t.Fatalf("result %d: unexpected rows %v", i, rows)
		}
	}
}

func TestCollectionPatchDuringFetchIsReplayed(t *testing.T) {
	var remote []row
	var remoteMu sync.Mutex
	snapshotTaken := make(chan struct{})
	release := make(chan struct{})
	c := New("courses", rowKey, func(context.Context) ([]row, error) {
		remoteMu.Lock()
		snapshot := append([]row(nil), remote...)
		remoteMu.Unlock()
		close(snapshotTaken)
		<-release
		return snapshot, nil
	}, WithClone(cloneRow))

	done := make(chan []row)
	go func() {
		rows, err := c.Load(context.Background())
		if err != nil {
			t.Errorf("Load failed: %v", err)
		}
		done <- rows
	}()
	<-snapshotTaken

	// A write confirmed by the store after the snapshot was read.
	created := row{ID: "y", Name: "Yoga"}
	remoteMu.Lock()
	remote = append(remote, created)
	remoteMu.Unlock()
	c.Apply(Insert(created, byName))
	c.Apply(Merge("y", func(r *row) { r.Tags = []string{"calm"} }))

	close(release)
	rows := <-done
	if len(rows) != 1 || rows[0].Name != "Yoga" || len(rows[0].Tags) != 1 {
		t.Fatalf("write made during the fetch must survive the load, got %+v", rows)
	}

	// Replaying onto rows that already contain the write must not duplicate it.
	c.Apply(Insert(row{ID: "y", Name: "Yoga"}, byName))
	if got := names(c.Rows()); got != "Yoga" {
		t.Fatalf("insert must replace a row with the same key, got %s", got)
	}
}

func TestCollectionJournalOnlyReplaysLaterPatches(t *testing.T) {
	fetches := 0
	c := New("courses", rowKey, func(context.Context) ([]row, error) {
		fetches++
		return []row{{ID: "a", Name: "Aerial"}}, nil
	})
	// Applied before any fetch started: the load replaces it.
	c.Apply(Insert(row{ID: "ghost", Name: "Ghost"}, byName))
	rows, err := c.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "a" || fetches != 1 {
		t.Fatalf("expected fetched rows only, got %+v", rows)
	}
}

func TestCollectionFetchErrorStaysUnloaded(t *testing.T) {
	fail := true
	c := New("users", rowKey, func(context.Context) ([]row, error) {
		if fail {
			return nil, errors.New("offline")
		}
		return []row{{ID: "u1"}}, nil
	})

	if _, err := c.Load(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	if c.Loaded() {
		t.Fatalf("failed load must not mark the collection loaded")
	}
	fail = false
	rows, err := c.Load(context.Background())
	if err != nil || len(rows) != 1 {
		t.Fatalf("expected retry to succeed, got %v, %v", rows, err)
	}
}

func TestCollectionPatches(t *testing.T) {
	c := New("courses", rowKey, func(context.Context) ([]row, error) {
		return []row{{ID: "b", Name: "Boxe"}, {ID: "y", Name: "Yoga", Tags: []string{"calm"}}}, nil
	}, WithClone(cloneRow))
	if _, err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	c.Apply(Insert(row{ID: "a", Name: "Aerial"}, byName))
	if got := names(c.Rows()); got != "Aerial,Boxe,Yoga" {
		t.Fatalf("insert must re-sort, got %s", got)
	}

	c.Apply(Merge("b", func(r *row) { r.Name = "Zumba" }))
	c.Apply(Upsert(row{ID: "a", Name: "Acro"}, byName))
	if got := names(c.Rows()); got != "Acro,Yoga,Zumba" {
		t.Fatalf("unexpected rows after merge and upsert: %s", got)
	}

	c.Apply(Merge("missing", func(r *row) { r.Name = "ghost" }))
	c.Apply(Chain(Remove[row]("y"), Upsert(row{ID: "n", Name: "New"}, byName)))
	if got := names(c.Rows()); got != "Acro,New,Zumba" {
		t.Fatalf("unexpected rows after chain: %s", got)
	}

	found, ok := c.Find("n")
	if !ok || found.Name != "New" {
		t.Fatalf("Find failed: %+v, %v", found, ok)
	}
	if _, ok := c.Find("y"); ok {
		t.Fatalf("removed row must not be found")
	}
}

func TestCollectionCopyOnRead(t *testing.T) {
	c := New("courses", rowKey, func(context.Context) ([]row, error) {
		return []row{{ID: "y", Name: "Yoga", Tags: []string{"calm"}}}, nil
	}, WithClone(cloneRow))
	rows, _ := c.Load(context.Background())
	rows[0].Name = "mutated"
	rows[0].Tags[0] = "mutated"

	fresh := c.Rows()
	if fresh[0].Name != "Yoga" || fresh[0].Tags[0] != "calm" {
		t.Fatalf("callers must not be able to mutate cached rows, got %+v", fresh[0])
	}
}

func names(rows []row) string {
	out := ""
	for i, r := range rows {
		if i > 0 {
			out += ","
		}
		out += r.Name
	}
	return out
}
