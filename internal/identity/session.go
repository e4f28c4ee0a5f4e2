package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// Snapshot is the cached copy of a user's profile carried by a session.
type Snapshot struct {
	ID                string `json:"id"`
	Role              string `json:"role"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	ProfilePictureURL string `json:"profilePictureUrl"`
	PhoneNumber       string `json:"phoneNumber"`
}

type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Snapshot      Snapshot  `json:"snapshot"`
	SelectedBooth string    `json:"selected_booth,omitempty"`
	RefreshedAt   time.Time `json:"refreshed_at"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionStore keeps sessions until their ExpiresAt.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]Session, error)
	// Modify applies fn to a live session and stores the result atomically.
	// A session deleted or expired meanwhile is ErrSessionNotFound and is not recreated.
	Modify(ctx context.Context, id string, fn func(*Session)) (Session, error)
}

const maxModifyAttempts = 5

type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]Session), now: time.Now}
}

func (m *MemorySessionStore) Save(ctx context.Context, session Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || session.Expired(m.now()) {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) Modify(ctx context.Context, id string, fn func(*Session)) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok || session.Expired(m.now()) {
		return Session{}, ErrSessionNotFound
	}
	fn(&session)
	session.ID = id
	m.sessions[id] = session
	return session, nil
}

func (m *MemorySessionStore) ListByUser(ctx context.Context, userID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	var out []Session
	for _, session := range m.sessions {
		if session.UserID == userID && !session.Expired(now) {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
