// Package changefeed carries document change notifications from the
// services that write documents to the realtime listeners.
package changefeed

import (
	"context"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/logging"
	"photobox/internal/store"
)

const DefaultChannel = "photobox:documents"

type Event struct {
	Path    string         `json:"path"`
	Deleted bool           `json:"deleted"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}

// Affects reports whether a listener on path should hear about e. A deleted
// ancestor affects every document beneath it.
func (e Event) Affects(path string) bool {
	if e.Path == path {
		return true
	}
	if !e.Deleted || len(path) <= len(e.Path) {
		return false
	}
	return path[:len(e.Path)] == e.Path && path[len(e.Path)] == '/'
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber delivers events until ctx is cancelled, then closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Store publishes an event after every successful write to the wrapped store.
type Store struct {
	store.Store
	publisher Publisher
	now       func() time.Time
}

func Wrap(inner store.Store, publisher Publisher) *Store {
	return &Store{Store: inner, publisher: publisher, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Create(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	doc, err := s.Store.Create(ctx, path, data)
	if err == nil {
		s.publish(ctx, Event{Path: path.String(), Data: doc.Data})
	}
	return doc, err
}

func (s *Store) Set(ctx context.Context, path docpath.Path, data map[string]any, merge bool) (store.Document, error) {
	doc, err := s.Store.Set(ctx, path, data, merge)
	if err == nil {
		s.publish(ctx, Event{Path: path.String(), Data: doc.Data})
	}
	return doc, err
}

func (s *Store) Update(ctx context.Context, path docpath.Path, data map[string]any) (store.Document, error) {
	doc, err := s.Store.Update(ctx, path, data)
	if err == nil {
		s.publish(ctx, Event{Path: path.String(), Data: doc.Data})
	}
	return doc, err
}

func (s *Store) Delete(ctx context.Context, path docpath.Path) error {
	err := s.Store.Delete(ctx, path)
	if err == nil {
		s.publish(ctx, Event{Path: path.String(), Deleted: true})
	}
	return err
}

func (s *Store) DeleteTree(ctx context.Context, path docpath.Path) (int, error) {
	deleted, err := s.Store.DeleteTree(ctx, path)
	if err == nil && deleted > 0 {
		s.publish(ctx, Event{Path: path.String(), Deleted: true})
	}
	return deleted, err
}

// Write already succeeded, so a failed publish is only logged.
func (s *Store) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}
	event.At = s.now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		logging.Warn().Err(err).Str("path", event.Path).Msg("publish change event failed")
	}
}
