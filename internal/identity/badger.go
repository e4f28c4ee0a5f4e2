package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	badgerSessionPrefix = "session:"
	badgerUserPrefix    = "session_user:"
)

// BadgerSessionStore keeps sessions on local disk. Entries carry a TTL so
// badger drops them on its own.
type BadgerSessionStore struct {
	db  *badger.DB
	now func() time.Time
}

func NewBadgerSessionStore(db *badger.DB) *BadgerSessionStore {
	return &BadgerSessionStore{db: db, now: time.Now}
}

func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", path, err)
	}
	return db, nil
}

func (b *BadgerSessionStore) Save(ctx context.Context, session Session) error {
	ttl := session.ExpiresAt.Sub(b.now())
	if ttl <= 0 {
		return b.Delete(ctx, session.ID)
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(badgerSessionPrefix+session.ID), data).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set session: %w", err)
		}
		index := badger.NewEntry([]byte(badgerUserPrefix+session.UserID+":"+session.ID), []byte(session.ID)).WithTTL(ttl)
		if err := txn.SetEntry(index); err != nil {
			return fmt.Errorf("set user mapping: %w", err)
		}
		return nil
	})
}

func (b *BadgerSessionStore) Get(ctx context.Context, id string) (Session, error) {
	var session Session
	err := b.db.View(func(txn *badger.Txn) error {
		return readSession(txn, id, &session)
	})
	if err != nil {
		return Session{}, err
	}
	if session.Expired(b.now()) {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (b *BadgerSessionStore) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var session Session
		err := readSession(txn, id, &session)
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete([]byte(badgerSessionPrefix + id)); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if err := txn.Delete([]byte(badgerUserPrefix + session.UserID + ":" + id)); err != nil {
			return fmt.Errorf("delete user mapping: %w", err)
		}
		return nil
	})
}

// Modify rewrites the session inside one transaction. Badger reports a
// conflicting concurrent write as ErrConflict, which is retried.
func (b *BadgerSessionStore) Modify(ctx context.Context, id string, fn func(*Session)) (Session, error) {
	var out Session
	for attempt := 0; attempt < maxModifyAttempts; attempt++ {
		err := b.db.Update(func(txn *badger.Txn) error {
			var session Session
			if err := readSession(txn, id, &session); err != nil {
				return err
			}
			ttl := session.ExpiresAt.Sub(b.now())
			if ttl <= 0 {
				return ErrSessionNotFound
			}
			fn(&session)
			session.ID = id
			data, err := json.Marshal(session)
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			if err := txn.SetEntry(badger.NewEntry([]byte(badgerSessionPrefix+id), data).WithTTL(ttl)); err != nil {
				return fmt.Errorf("set session: %w", err)
			}
			out = session
			return nil
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return Session{}, err
		}
		return out, nil
	}
	return Session{}, fmt.Errorf("modify session %s: too much contention", id)
}

func (b *BadgerSessionStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	var out []Session
	now := b.now()
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerUserPrefix + userID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			var session Session
			if err := readSession(txn, id, &session); err != nil {
				if errors.Is(err, ErrSessionNotFound) {
					continue
				}
				return err
			}
			if !session.Expired(now) {
				out = append(out, session)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	return out, nil
}

func readSession(txn *badger.Txn, id string, session *Session) error {
	item, err := txn.Get([]byte(badgerSessionPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, session)
	})
}
