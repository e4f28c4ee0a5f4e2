package postgres

import (
	"context"
	"errors"
	"fmt"

	"photobox/internal/docpath"
	"photobox/internal/store"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectColumns = `path, data, created_at, updated_at`

func (s *Store) Get(ctx context.Context, path docpath.Path) (store.Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM documents
		WHERE path = $1
	`, path.String())
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, err
	}
	return doc, nil
}

func (s *Store) List(ctx context.Context, collection docpath.Path) ([]store.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM documents
		WHERE parent = $1
		ORDER BY doc_id COLLATE "C"
	`, collection.String())
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (s *Store) Create(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	raw, err := encode(data)
	if err != nil {
		return store.Document{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (path, parent, collection_id, doc_id, data)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (path) DO NOTHING
		RETURNING `+selectColumns+`
	`, path.String(), path.Parent().String(), path.CollectionID(), path.ID(), raw)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrConflict
		}
		return store.Document{}, err
	}
	return doc, nil
}

func (s *Store) Set(ctx context.Context, path docpath.Path, data map[string]any, merge bool) (store.Document, error) {
	raw, err := encode(data)
	if err != nil {
		return store.Document{}, err
	}
	update := `EXCLUDED.data`
	if merge {
		update = `documents.data || EXCLUDED.data`
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (path, parent, collection_id, doc_id, data)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (path) DO UPDATE
		SET data = `+update+`, updated_at = NOW()
		RETURNING `+selectColumns+`
	`, path.String(), path.Parent().String(), path.CollectionID(), path.ID(), raw)
	return scanDocument(row)
}

func (s *Store) Update(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	raw, err := encode(data)
	if err != nil {
		return store.Document{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE documents
		SET data = data || $2::jsonb, updated_at = NOW()
		WHERE path = $1
		RETURNING `+selectColumns+`
	`, path.String(), raw)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, err
	}
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, path docpath.Path) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path.String())
	return err
}

func (s *Store) DeleteTree(ctx context.Context, path docpath.Path) (deleted int, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	children, err := tx.Exec(ctx, `
		DELETE FROM documents
		WHERE starts_with(path, $1)
	`, path.String()+"/")
	if err != nil {
		return 0, err
	}
	self, err := tx.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path.String())
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(children.RowsAffected() + self.RowsAffected()), nil
}

func (s *Store) FindInGroup(ctx context.Context, collectionID, field string, value any, limit int) ([]store.Document, error) {
	filter, err := encode(map[string]any{field: value})
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM documents
		WHERE collection_id = $1 AND data @> $2::jsonb
		ORDER BY path COLLATE "C"
		LIMIT $3
	`, collectionID, filter, limit)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func (s *Store) ListGroup(ctx context.Context, collectionID string, after string, limit int) ([]store.Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM documents
		WHERE collection_id = $1 AND path COLLATE "C" > $2
		ORDER BY path COLLATE "C"
		LIMIT $3
	`, collectionID, after, limit)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

func encode(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	if err := store.CheckFields(data); err != nil {
		return "", err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func scanDocument(row pgx.Row) (store.Document, error) {
	var (
		doc  store.Document
		path string
		raw  []byte
	)
	if err := row.Scan(&path, &raw, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return store.Document{}, err
	}
	parsed, err := docpath.Parse(path)
	if err != nil {
		return store.Document{}, err
	}
	doc.Path = parsed
	doc.Data = map[string]any{}
	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return store.Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, nil
}

func collectDocuments(rows pgx.Rows) ([]store.Document, error) {
	defer rows.Close()
	var docs []store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
