// Package resource maps dashboard resources onto document paths.
package resource

import (
	"context"
	"errors"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/store"

	"github.com/google/uuid"
)

type Scope struct {
	ClientID string
	BoothID  string
}

// Record is a document's fields plus its id under "id".
type Record map[string]any

func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

type List struct {
	Data  []Record `json:"data"`
	Total int      `json:"total"`
}

type Adapter interface {
	GetList(ctx context.Context, scope Scope) (List, error)
	GetOne(ctx context.Context, scope Scope, id string) (Record, error)
	Create(ctx context.Context, scope Scope, fields map[string]any) (Record, error)
	Upsert(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error)
	UpdateExisting(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error)
	DeleteOne(ctx context.Context, scope Scope, id string) (string, error)
}

type PathFunc func(scope Scope) (docpath.Path, error)

// Collection is the plain adapter: one collection, no field rules.
type Collection struct {
	store      store.Store
	collection PathFunc
	newID      func() string
	now        func() time.Time
}

func NewCollection(st store.Store, collection PathFunc) *Collection {
	return &Collection{
		store:      st,
		collection: collection,
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (c *Collection) GetList(ctx context.Context, scope Scope) (List, error) {
	collection, err := c.collection(scope)
	if err != nil {
		return List{}, err
	}
	docs, err := c.store.List(ctx, collection)
	if err != nil {
		return List{}, err
	}
	out := List{Data: make([]Record, 0, len(docs))}
	for _, doc := range docs {
		out.Data = append(out.Data, toRecord(doc))
	}
	out.Total = len(out.Data)
	return out, nil
}

func (c *Collection) GetOne(ctx context.Context, scope Scope, id string) (Record, error) {
	path, err := c.doc(scope, id)
	if err != nil {
		return nil, err
	}
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return toRecord(doc), nil
}

// Create uses fields["id"] verbatim when present.
func (c *Collection) Create(ctx context.Context, scope Scope, fields map[string]any) (Record, error) {
	id, _ := fields["id"].(string)
	if id == "" {
		id = c.newID()
	}
	return c.create(ctx, scope, id, fields)
}

func (c *Collection) create(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error) {
	path, err := c.doc(scope, id)
	if err != nil {
		return nil, err
	}
	doc, err := c.store.Create(ctx, path, withoutID(fields))
	if err != nil {
		return nil, err
	}
	return toRecord(doc), nil
}

func (c *Collection) Upsert(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error) {
	path, err := c.doc(scope, id)
	if err != nil {
		return nil, err
	}
	doc, err := c.store.Set(ctx, path, withoutID(fields), true)
	if err != nil {
		return nil, err
	}
	return toRecord(doc), nil
}

func (c *Collection) UpdateExisting(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error) {
	path, err := c.doc(scope, id)
	if err != nil {
		return nil, err
	}
	doc, err := c.store.Update(ctx, path, withoutID(fields))
	if err != nil {
		return nil, err
	}
	return toRecord(doc), nil
}

func (c *Collection) DeleteOne(ctx context.Context, scope Scope, id string) (string, error) {
	path, err := c.doc(scope, id)
	if err != nil {
		return "", err
	}
	if err := c.store.Delete(ctx, path); err != nil {
		return "", err
	}
	return id, nil
}

func (c *Collection) doc(scope Scope, id string) (docpath.Path, error) {
	if id == "" {
		return docpath.Path{}, ErrMissingID
	}
	collection, err := c.collection(scope)
	if err != nil {
		return docpath.Path{}, err
	}
	return collection.Child(id)
}

func (c *Collection) timestamp() string {
	return c.now().Format(time.RFC3339)
}

func toRecord(doc store.Document) Record {
	out := make(Record, len(doc.Data)+1)
	for k, v := range doc.Data {
		out[k] = v
	}
	out["id"] = doc.ID()
	return out
}

func withoutID(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

// UsersPath ignores the scope: users is a root collection.
func UsersPath(Scope) (docpath.Path, error) {
	return docpath.Collection(docpath.Users)
}

func boothSubcollection(name string) PathFunc {
	return func(scope Scope) (docpath.Path, error) {
		if scope.ClientID == "" {
			return docpath.Path{}, docpath.ErrAuthenticationRequired
		}
		if scope.BoothID == "" {
			return docpath.Path{}, ErrNoBoothSelected
		}
		return docpath.Resolve(scope.ClientID, scope.BoothID, name, "")
	}
}

func isConflict(err error) bool {
	return errors.Is(err, store.ErrConflict)
}

var (
	_ Adapter = (*Collection)(nil)
	_ Adapter = (*Vouchers)(nil)
	_ Adapter = (*Booths)(nil)
	_ Adapter = (*Backgrounds)(nil)
)
