// Package docstore keeps loosely typed document collections in PostgreSQL jsonb.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a document does not exist in its collection.
var ErrNotFound = errors.New("docstore: document not found")

// Document is a stored document with its id and raw fields.
type Document struct {
	ID        string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store reads and writes documents grouped by collection name.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectColumns = `id, data, created_at, updated_at`

// Get loads a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// All returns every document of a collection ordered by creation time.
func (s *Store) All(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM documents WHERE collection=$1 ORDER BY created_at, id`, collection)
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	return collect(rows)
}

// Where returns documents whose top-level field equals value.
func (s *Store) Where(ctx context.Context, collection, field string, value any) ([]Document, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM documents WHERE collection=$1 AND data->>$2 = $3 ORDER BY created_at, id`,
		collection, field, fmt.Sprint(value))
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s where %s: %w", collection, field, err)
	}
	return collect(rows)
}

// Insert stores a new document under a generated id.
func (s *Store) Insert(ctx context.Context, collection string, fields Fields) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or fully replaces a document.
func (s *Store) Set(ctx context.Context, collection, id string, fields Fields) error {
	if fields == nil {
		fields = Fields{}
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		collection, id, map[string]any(fields))
	if err != nil {
		return fmt.Errorf("docstore: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields Fields) error {
	tag, err := s.pool.Exec(ctx, `UPDATE documents SET data = data || $3, updated_at = NOW() WHERE collection=$1 AND id=$2`,
		collection, id, map[string]any(fields))
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, collection, id)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Increment atomically adds one to a numeric field of a counter document and
// returns the new value. A missing counter starts at seed.
func (s *Store) Increment(ctx context.Context, collection, id, field string, seed func(context.Context) (int64, error)) (int64, error) {
	var initial int64
	if _, err := s.Get(ctx, collection, id); errors.Is(err, ErrNotFound) && seed != nil {
		v, err := seed(ctx)
		if err != nil {
			return 0, fmt.Errorf("docstore: seed counter %s/%s: %w", collection, id, err)
		}
		initial = v
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	var value int64
	err := s.pool.QueryRow(ctx, `INSERT INTO documents (collection, id, data, created_at, updated_at)
		VALUES ($1, $2, jsonb_build_object($3::text, $4::bigint + 1), NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = jsonb_set(documents.data, ARRAY[$3::text], to_jsonb(COALESCE((documents.data->>$3)::bigint, 0) + 1)),
			updated_at = NOW()
		RETURNING (data->>$3)::bigint`, collection, id, field, initial).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("docstore: increment %s/%s: %w", collection, id, err)
	}
	return value, nil
}

// Counter reads a counter written by Increment. ok is false when the
// counter document does not exist yet.
func (s *Store) Counter(ctx context.Context, collection, id, field string) (value int64, ok bool, err error) {
	err = s.pool.QueryRow(ctx, `SELECT COALESCE((data->>$3)::bigint, 0) FROM documents WHERE collection=$1 AND id=$2`,
		collection, id, field).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("docstore: read counter %s/%s: %w", collection, id, err)
	}
	return value, true, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var data map[string]any
	if err := row.Scan(&doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Fields = Fields(data)
	if doc.Fields == nil {
		doc.Fields = Fields{}
	}
	return doc, nil
}

func collect(rows pgx.Rows) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
