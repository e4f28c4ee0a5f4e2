package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/store"
)

type Store struct {
	mu   sync.RWMutex
	docs map[string]store.Document
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		docs: make(map[string]store.Document),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Get(ctx context.Context, path docpath.Path) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[path.String()]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return clone(doc), nil
}

func (s *Store) List(ctx context.Context, collection docpath.Path) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parent := collection.String()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []store.Document
	for _, doc := range s.docs {
		if doc.Path.Parent().String() == parent {
			docs = append(docs, clone(doc))
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
	return docs, nil
}

func (s *Store) Create(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	normalized, err := store.NormalizeWrite(data)
	if err != nil {
		return store.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path.String()]; ok {
		return store.Document{}, store.ErrConflict
	}
	now := s.now()
	doc := store.Document{Path: path, Data: normalized, CreatedAt: now, UpdatedAt: now}
	s.docs[path.String()] = doc
	return clone(doc), nil
}

func (s *Store) Set(ctx context.Context, path docpath.Path, data map[string]any, merge bool) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	normalized, err := store.NormalizeWrite(data)
	if err != nil {
		return store.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	existing, ok := s.docs[path.String()]
	doc := store.Document{Path: path, Data: normalized, CreatedAt: now, UpdatedAt: now}
	if ok {
		doc.CreatedAt = existing.CreatedAt
		if merge {
			doc.Data = store.Merge(existing.Data, normalized)
		}
	}
	s.docs[path.String()] = doc
	return clone(doc), nil
}

func (s *Store) Update(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	normalized, err := store.NormalizeWrite(data)
	if err != nil {
		return store.Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.docs[path.String()]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	existing.Data = store.Merge(existing.Data, normalized)
	existing.UpdatedAt = s.now()
	s.docs[path.String()] = existing
	return clone(existing), nil
}

func (s *Store) Delete(ctx context.Context, path docpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path.String())
	return nil
}

func (s *Store) DeleteTree(ctx context.Context, path docpath.Path) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	prefix := path.String() + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key := range s.docs {
		if strings.HasPrefix(key, prefix) {
			delete(s.docs, key)
			deleted++
		}
	}
	if _, ok := s.docs[path.String()]; ok {
		delete(s.docs, path.String())
		deleted++
	}
	return deleted, nil
}

func (s *Store) FindInGroup(ctx context.Context, collectionID, field string, value any, limit int) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	want, err := store.Normalize(map[string]any{"v": value})
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []store.Document
	for _, doc := range s.sortedLocked() {
		if doc.Path.CollectionID() != collectionID {
			continue
		}
		got, ok := doc.Data[field]
		if !ok || !reflect.DeepEqual(got, want["v"]) {
			continue
		}
		docs = append(docs, clone(doc))
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	return docs, nil
}

func (s *Store) ListGroup(ctx context.Context, collectionID string, after string, limit int) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []store.Document
	for _, doc := range s.sortedLocked() {
		if doc.Path.CollectionID() != collectionID || doc.Path.String() <= after {
			continue
		}
		docs = append(docs, clone(doc))
		if limit > 0 && len(docs) >= limit {
			break
		}
	}
	return docs, nil
}

func (s *Store) sortedLocked() []store.Document {
	docs := make([]store.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path.String() < docs[j].Path.String() })
	return docs
}

func clone(doc store.Document) store.Document {
	data, err := store.Normalize(doc.Data)
	if err != nil {
		data = store.Merge(nil, doc.Data)
	}
	doc.Data = data
	return doc
}
