package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/studio-admin/internal/docstore"
)

func newTestStorage() *Storage {
	var counter int
	fixed := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	return Open(
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("doc-%03d", counter)
		}),
	)
}

func TestStorageCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()

	id, err := s.Create(ctx, "courses", docstore.Fields{"name": "Yoga", "capacity": 10, "createdAt": docstore.ServerTimestamp})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "doc-001" {
		t.Fatalf("unexpected generated id %q", id)
	}

	doc, err := s.Get(ctx, "courses", id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.Fields["capacity"] != int64(10) {
		t.Fatalf("expected capacity normalised to int64, got %T", doc.Fields["capacity"])
	}
	if _, ok := doc.Fields["createdAt"].(time.Time); !ok {
		t.Fatalf("expected server timestamp to be resolved, got %T", doc.Fields["createdAt"])
	}

	doc.Fields["name"] = "mutated"
	again, _ := s.Get(ctx, "courses", id)
	if again.Fields["name"] != "Yoga" {
		t.Fatalf("Get must return a copy")
	}

	if err := s.Update(ctx, "courses", id, docstore.Fields{"description": nil}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	again, _ = s.Get(ctx, "courses", id)
	if v, ok := again.Fields["description"]; !ok || v != nil {
		t.Fatalf("expected explicit null to be stored, got %v (present=%v)", v, ok)
	}

	if err := s.Update(ctx, "courses", "missing", docstore.Fields{"name": "x"}); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.Delete(ctx, "courses", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "courses", id); err != nil {
		t.Fatalf("second Delete must be idempotent: %v", err)
	}
	if _, err := s.Get(ctx, "courses", id); !errors.Is(err, docstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStorageSetMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()
	coll := docstore.Path("users", "u1", "payments")

	if err := s.Set(ctx, coll, "2024-03", docstore.Fields{"paid": true, "note": "cash"}, docstore.Replace); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(ctx, coll, "2024-03", docstore.Fields{"paid": false}, docstore.Merge); err != nil {
		t.Fatalf("merge Set failed: %v", err)
	}

	doc, _ := s.Get(ctx, coll, "2024-03")
	if doc.Fields["paid"] != false || doc.Fields["note"] != "cash" {
		t.Fatalf("merge must keep unrelated fields, got %v", doc.Fields)
	}

	if err := s.Set(ctx, coll, "2024-03", docstore.Fields{"paid": true}, docstore.Replace); err != nil {
		t.Fatalf("replace Set failed: %v", err)
	}
	doc, _ = s.Get(ctx, coll, "2024-03")
	if _, ok := doc.Fields["note"]; ok {
		t.Fatalf("replace must drop fields not provided, got %v", doc.Fields)
	}
}

func TestStorageFind(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage()

	seed := []docstore.Fields{
		{"courseId": "c1", "date": "2024-03-04", "userName": "Bea"},
		{"courseId": "c1", "date": "2024-03-05", "userName": "Al"},
		{"courseId": "c2", "date": "2024-03-04", "userName": "Cy"},
		{"courseId": "c2", "date": "2024-03-06"},
	}
	for _, f := range seed {
		if _, err := s.Create(ctx, "bookings", f); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	t.Run("equality with ordering", func(t *testing.T) {
		docs, err := s.Find(ctx, docstore.Query{
			Collection: "bookings",
			Where:      []docstore.Filter{docstore.Eq("date", "2024-03-04")},
			OrderBy:    "userName",
		})
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(docs) != 2 || docs[0].Fields["userName"] != "Bea" || docs[1].Fields["userName"] != "Cy" {
			t.Fatalf("unexpected result %+v", docs)
		}
	})

	t.Run("in filter descending", func(t *testing.T) {
		docs, err := s.Find(ctx, docstore.Query{
			Collection: "bookings",
			Where:      []docstore.Filter{docstore.InValues("date", []string{"2024-03-05", "2024-03-06"})},
			OrderBy:    "date",
			Direction:  docstore.Desc,
		})
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(docs) != 2 || docs[0].Fields["date"] != "2024-03-06" {
			t.Fatalf("unexpected result %+v", docs)
		}
	})

	t.Run("missing order field excluded", func(t *testing.T) {
		docs, _ := s.Find(ctx, docstore.Query{Collection: "bookings", OrderBy: "userName"})
		if len(docs) != 3 {
			t.Fatalf("expected 3 documents with userName, got %d", len(docs))
		}
	})

	t.Run("unknown collection", func(t *testing.T) {
		docs, err := s.Find(ctx, docstore.Query{Collection: "nope"})
		if err != nil || len(docs) != 0 {
			t.Fatalf("expected empty result, got %v, %v", docs, err)
		}
	})
}
