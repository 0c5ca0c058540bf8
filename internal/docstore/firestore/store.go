// Package firestore implements docstore.Store with Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/studio-admin/internal/docstore"
)

// Store adapts a Firestore client. The client honours FIRESTORE_EMULATOR_HOST.
type Store struct {
	client *firestore.Client
}

// Open creates a client for projectID.
func Open(ctx context.Context, projectID string) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: new client: %w", err)
	}
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get loads a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return docstore.Document{}, mapError(err)
	}
	return toDocument(snap)
}

// Find runs a query using native filtering and ordering.
func (s *Store) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Where {
		value, err := toValue(f.Value)
		if err != nil {
			return nil, err
		}
		query = query.Where(f.Field, string(f.Op), value)
	}
	if q.OrderBy != "" {
		direction := firestore.Asc
		if q.Direction == docstore.Desc {
			direction = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, direction)
	}

	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	docs := make([]docstore.Document, 0, len(snaps))
	for _, snap := range snaps {
		doc, err := toDocument(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Create adds a document with a generated key.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	data, err := toData(fields)
	if err != nil {
		return "", err
	}
	ref, _, err := s.client.Collection(collection).Add(ctx, data)
	if err != nil {
		return "", mapError(err)
	}
	return ref.ID, nil
}

// Set writes a document by key. Merge maps to firestore.MergeAll.
func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields, mode docstore.SetMode) error {
	data, err := toData(fields)
	if err != nil {
		return err
	}
	ref := s.client.Collection(collection).Doc(id)
	if mode == docstore.Merge {
		_, err = ref.Set(ctx, data, firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, data)
	}
	return mapError(err)
}

// Update applies a partial update; nil values are written as null.
func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(fields))
	for _, k := range keys {
		value, err := toValue(fields[k])
		if err != nil {
			return fmt.Errorf("firestore: field %s: %w", k, err)
		}
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: value})
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	return mapError(err)
}

// Delete removes a document; Firestore treats missing documents as success.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return docstore.ErrNotFound
	}
	return fmt.Errorf("firestore: %w", err)
}

func toDocument(snap *firestore.DocumentSnapshot) (docstore.Document, error) {
	fields := make(docstore.Fields, len(snap.Data()))
	for k, v := range snap.Data() {
		n, err := docstore.Normalize(v)
		if err != nil {
			return docstore.Document{}, fmt.Errorf("firestore: %s/%s field %s: %w", snap.Ref.Parent.Path, snap.Ref.ID, k, err)
		}
		fields[k] = n
	}
	return docstore.Document{ID: snap.Ref.ID, Fields: fields}, nil
}

func toData(fields docstore.Fields) (map[string]any, error) {
	data := make(map[string]any, len(fields))
	for k, v := range fields {
		value, err := toValue(v)
		if err != nil {
			return nil, fmt.Errorf("firestore: field %s: %w", k, err)
		}
		data[k] = value
	}
	return data, nil
}

var errUnsupported = errors.New("unsupported value")

func toValue(v any) (any, error) {
	if docstore.IsServerTimestamp(v) {
		return firestore.ServerTimestamp, nil
	}
	n, err := docstore.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnsupported, err)
	}
	return n, nil
}
