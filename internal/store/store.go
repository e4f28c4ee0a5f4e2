package store

import (
	"context"
	"time"

	"photobox/internal/docpath"
)

type Document struct {
	Path      docpath.Path
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (d Document) ID() string {
	return d.Path.ID()
}

type Store interface {
	Get(ctx context.Context, path docpath.Path) (Document, error)
	List(ctx context.Context, collection docpath.Path) ([]Document, error)
	Create(ctx context.Context, path docpath.Path, data map[string]any) (Document, error)
	Set(ctx context.Context, path docpath.Path, data map[string]any, merge bool) (Document, error)
	Update(ctx context.Context, path docpath.Path, data map[string]any) (Document, error)
	Delete(ctx context.Context, path docpath.Path) error
	DeleteTree(ctx context.Context, path docpath.Path) (int, error)
	FindInGroup(ctx context.Context, collectionID, field string, value any, limit int) ([]Document, error)
	ListGroup(ctx context.Context, collectionID string, after string, limit int) ([]Document, error)
}
