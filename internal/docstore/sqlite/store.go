// Package sqlite implements docstore.Store on a single SQLite table holding
// JSON documents.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/studio-admin/internal/docstore"
	"github.com/example/studio-admin/internal/docstore/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// timeKey tags encoded timestamps inside the JSON body.
const timeKey = "$time"

// Store is a docstore.Store backed by SQLite.
type Store struct {
	pool  *ConnectionPool
	retry RetryConfig
	now   func() time.Time
	newID func() string
}

// Open connects to the database and applies the embedded migrations.
func Open(ctx context.Context, cfg migration.SQLiteConfig, logger *slog.Logger) (*Store, error) {
	pool, err := NewConnectionPool(cfg)
	if err != nil {
		return nil, err
	}
	manager := migration.NewManager(migration.NewFSScanner(migrationFiles), migration.NewSQLiteExecutor(pool.DB()), "migrations", logger)
	if err := manager.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return NewStore(pool), nil
}

// NewStore wraps an already migrated pool.
func NewStore(pool *ConnectionPool) *Store {
	return &Store{pool: pool, retry: DefaultRetryConfig(), now: time.Now, newID: uuid.NewString}
}

// WithClock overrides the clock used for server timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var body string
	err := withRetry(ctx, s.retry, func() error {
		return s.pool.DB().QueryRowContext(ctx,
			`SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("sqlite: get %s/%s: %w", collection, id, err)
	}
	fields, err := decodeFields(body)
	if err != nil {
		return docstore.Document{}, fmt.Errorf("sqlite: decode %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Fields: fields}, nil
}

// Find translates filters and ordering into json_extract expressions.
func (s *Store) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	query, args, err := buildFindQuery(q)
	if err != nil {
		return nil, err
	}

	var docs []docstore.Document
	err = withRetry(ctx, s.retry, func() error {
		docs = docs[:0]
		rows, err := s.pool.DB().QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id, body string
			if err := rows.Scan(&id, &body); err != nil {
				return err
			}
			fields, err := decodeFields(body)
			if err != nil {
				return fmt.Errorf("decode %s: %w", id, err)
			}
			docs = append(docs, docstore.Document{ID: id, Fields: fields})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: find %s: %w", q.Collection, err)
	}
	return docs, nil
}

func buildFindQuery(q docstore.Query) (string, []any, error) {
	var (
		sb   strings.Builder
		args = []any{q.Collection}
	)
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)

	for _, f := range q.Where {
		value, err := docstore.Normalize(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("sqlite: filter %s: %w", f.Field, err)
		}
		switch f.Op {
		case docstore.In:
			list, _ := value.([]any)
			if len(list) == 0 {
				sb.WriteString(` AND 0`)
				continue
			}
			sb.WriteString(` AND json_extract(data, ?) IN (`)
			args = append(args, jsonPath(f.Field))
			for i, item := range list {
				if i > 0 {
					sb.WriteString(`, `)
				}
				sb.WriteString(`?`)
				args = append(args, sqlValue(item))
			}
			sb.WriteString(`)`)
		default:
			sb.WriteString(` AND json_extract(data, ?) = ?`)
			args = append(args, jsonPath(f.Field), sqlValue(value))
		}
	}

	if q.OrderBy != "" {
		direction := "ASC"
		if q.Direction == docstore.Desc {
			direction = "DESC"
		}
		sb.WriteString(` AND json_type(data, ?) IS NOT NULL ORDER BY json_extract(data, ?) ` + direction + `, id ASC`)
		args = append(args, jsonPath(q.OrderBy), jsonPath(q.OrderBy))
	} else {
		sb.WriteString(` ORDER BY id ASC`)
	}
	return sb.String(), args, nil
}

// Create inserts a document under a generated key.
func (s *Store) Create(ctx context.Context, collection string, fields docstore.Fields) (string, error) {
	now := s.now().UTC()
	body, err := encodeFields(fields, now)
	if err != nil {
		return "", err
	}
	id := s.newID()
	stamp := now.Format(time.RFC3339Nano)
	err = withRetry(ctx, s.retry, func() error {
		_, err := s.pool.DB().ExecContext(ctx,
			`INSERT INTO documents (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			collection, id, body, stamp, stamp)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("sqlite: create in %s: %w", collection, err)
	}
	return id, nil
}

// Set writes a document by key, merging into the stored body when requested.
func (s *Store) Set(ctx context.Context, collection, id string, fields docstore.Fields, mode docstore.SetMode) error {
	now := s.now().UTC()
	err := withRetry(ctx, s.retry, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			merged := fields
			if mode == docstore.Merge {
				existing, found, err := loadTx(ctx, tx, collection, id)
				if err != nil {
					return err
				}
				if found {
					merged = overlay(existing, fields)
				}
			}
			return upsertTx(ctx, tx, collection, id, merged, now)
		})
	})
	if err != nil {
		return fmt.Errorf("sqlite: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Fields) error {
	now := s.now().UTC()
	err := withRetry(ctx, s.retry, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			existing, found, err := loadTx(ctx, tx, collection, id)
			if err != nil {
				return err
			}
			if !found {
				return docstore.ErrNotFound
			}
			return upsertTx(ctx, tx, collection, id, overlay(existing, fields), now)
		})
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: update %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document; a missing row is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	err := withRetry(ctx, s.retry, func() error {
		_, err := s.pool.DB().ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func loadTx(ctx context.Context, tx *sql.Tx, collection, id string) (docstore.Fields, bool, error) {
	var body string
	err := tx.QueryRowContext(ctx, `SELECT data FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	fields, err := decodeFields(body)
	if err != nil {
		return nil, false, err
	}
	return fields, true, nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, collection, id string, fields docstore.Fields, now time.Time) error {
	body, err := encodeFields(fields, now)
	if err != nil {
		return err
	}
	stamp := now.Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, body, stamp, stamp)
	return err
}

func overlay(base, changes docstore.Fields) docstore.Fields {
	out := base.Clone()
	if out == nil {
		out = make(docstore.Fields, len(changes))
	}
	for k, v := range changes {
		out[k] = v
	}
	return out
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, `\"`) + `"`
}

// sqlValue mirrors what json_extract returns for the stored JSON value.
func sqlValue(v any) any {
	switch typed := v.(type) {
	case bool:
		if typed {
			return int64(1)
		}
		return int64(0)
	default:
		return v
	}
}

func encodeFields(fields docstore.Fields, now time.Time) (string, error) {
	normalized, err := docstore.NormalizeFields(fields, now)
	if err != nil {
		return "", err
	}
	encoded := make(map[string]any, len(normalized))
	for k, v := range normalized {
		encoded[k] = encodeValue(v)
	}
	body, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode document: %w", err)
	}
	return string(body), nil
}

func encodeValue(v any) any {
	switch typed := v.(type) {
	case time.Time:
		return map[string]any{timeKey: typed.UTC().Format(time.RFC3339Nano)}
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = encodeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = encodeValue(item)
		}
		return out
	default:
		return v
	}
}

func decodeFields(body string) (docstore.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make(docstore.Fields, len(raw))
	for k, v := range raw {
		decoded, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = decoded
	}
	return out, nil
}

func decodeValue(v any) (any, error) {
	switch typed := v.(type) {
	case json.Number:
		return docstore.Normalize(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			decoded, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = decoded
		}
		return out, nil
	case map[string]any:
		if raw, ok := typed[timeKey].(string); ok && len(typed) == 1 {
			return time.Parse(time.RFC3339Nano, raw)
		}
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			decoded, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = decoded
		}
		return out, nil
	default:
		return v, nil
	}
}
