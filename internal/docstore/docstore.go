// Package docstore defines the boundary to the hosted document database.
//
// Backends implement Store over Firestore, SQLite or process memory. Values in
// Fields are plain scalars (string, bool, int64, float64, time.Time), nil,
// []any and map[string]any.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: not found")

// Fields is a partial document. A nil value clears the field.
type Fields map[string]any

// Clone returns a shallow copy with nested slices and maps copied.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

type serverTimestamp struct{}

// ServerTimestamp asks the backend to write its own clock into the field.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Op is a filter comparison.
type Op string

const (
	Equal Op = "=="
	In    Op = "in"
)

// Filter restricts a query to documents whose field matches Value. For In,
// Value must be a []any.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: Equal, Value: value}
}

// InValues builds a membership filter.
func InValues[T any](field string, values []T) Filter {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return Filter{Field: field, Op: In, Value: list}
}

// Direction orders query results.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Query selects documents from a single collection.
type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Direction  Direction
}

// Document is a stored record with its key.
type Document struct {
	ID     string
	Fields Fields
}

// SetMode selects between replacing a document and merging into it.
type SetMode int

const (
	Replace SetMode = iota
	Merge
)

// Store is the minimal document database surface the application relies on.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, q Query) ([]Document, error)
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Set(ctx context.Context, collection, id string, fields Fields, mode SetMode) error
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete succeeds when the document is already absent.
	Delete(ctx context.Context, collection, id string) error
}

// Path joins collection and document segments into a nested collection path,
// e.g. Path("users", "u1", "payments").
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}
