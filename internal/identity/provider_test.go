package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/store"
	"photobox/internal/store/memory"
	"photobox/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestProvider(t *testing.T) (*Provider, *memory.Store, *clock) {
	t.Helper()
	st := memory.NewStore()
	sessions := NewMemorySessionStore()
	c := &clock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	sessions.now = c.now
	p := NewProvider(st, sessions, Config{BcryptCost: bcrypt.MinCost})
	p.now = c.now
	return p, st, c
}

func TestSignupCreatesAccount(t *testing.T) {
	ctx := context.Background()
	p, st, _ := newTestProvider(t)

	res, err := p.Signup(ctx, SignupInput{Email: "Ana@Example.com", Password: "secret1", PhoneNumber: "0812"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if res.SessionID == "" || res.RedirectTo != "/" {
		t.Fatalf("unexpected result %#v", res)
	}
	if res.User.Role != "client" || res.User.Name != "Ana" || res.User.PhoneNumber != "0812" {
		t.Fatalf("unexpected snapshot %#v", res.User)
	}

	client, _ := docpath.Doc(docpath.Clients, res.User.ID)
	doc, err := st.Get(ctx, client)
	if err != nil {
		t.Fatalf("client doc: %v", err)
	}
	if key, ok := doc.Data["xendit_api_key"]; !ok || key != "" {
		t.Fatalf("expected empty api key, got %#v", doc.Data)
	}
	booths, _ := docpath.BoothCollection(res.User.ID)
	list, err := st.List(ctx, booths)
	if err != nil || len(list) != 1 || list[0].Data["name"] != "Generated Booth" {
		t.Fatalf("expected placeholder booth, got %v %v", list, err)
	}

	_, err = p.Signup(ctx, SignupInput{Email: "ana@example.com", Password: "another", PhoneNumber: "1"})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
}

func TestSignupValidation(t *testing.T) {
	p, _, _ := newTestProvider(t)
	_, err := p.Signup(context.Background(), SignupInput{Email: "not-an-email", Password: "123", PhoneNumber: "1"})
	var verr *validation.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	p, st, _ := newTestProvider(t)

	userID, err := p.SetPassword(ctx, "budi@example.com", "secret1", "")
	if err != nil {
		t.Fatalf("set password: %v", err)
	}

	cases := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "wrong password", email: "budi@example.com", password: "nope", wantErr: ErrInvalidCredentials},
		{name: "unknown email", email: "who@example.com", password: "secret1", wantErr: ErrInvalidCredentials},
		{name: "empty", wantErr: ErrInvalidCredentials},
		{name: "mixed case email", email: " BUDI@example.com ", password: "secret1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := p.Login(ctx, tc.email, tc.password)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if tc.wantErr == nil && res.User.ID != userID {
				t.Fatalf("expected user %s, got %s", userID, res.User.ID)
			}
		})
	}

	user, _ := docpath.Doc(docpath.Users, userID)
	doc, err := st.Get(ctx, user)
	if err != nil {
		t.Fatalf("expected user created lazily: %v", err)
	}
	if doc.Data["role"] != "client" {
		t.Fatalf("unexpected role %v", doc.Data["role"])
	}
	client, _ := docpath.Doc(docpath.Clients, userID)
	if _, err := st.Get(ctx, client); err != nil {
		t.Fatalf("expected client created lazily: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	p, st, c := newTestProvider(t)
	res, err := p.Signup(ctx, SignupInput{Email: "cici@example.com", Password: "secret1", PhoneNumber: "1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	sid := res.SessionID

	if !p.Check(ctx, sid) {
		t.Fatalf("expected live session")
	}
	role, err := p.GetPermissions(ctx, sid)
	if err != nil || role != "client" {
		t.Fatalf("unexpected permissions %q %v", role, err)
	}

	user, _ := docpath.Doc(docpath.Users, res.User.ID)
	if _, err := st.Update(ctx, user, map[string]any{"role": "admin"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if role, _ := p.GetPermissions(ctx, sid); role != "client" {
		t.Fatalf("snapshot should be cached before refresh window, got %q", role)
	}
	c.t = c.t.Add(16 * time.Minute)
	if role, _ := p.GetPermissions(ctx, sid); role != "admin" {
		t.Fatalf("snapshot should reload after refresh window, got %q", role)
	}

	if _, err := st.Update(ctx, user, map[string]any{"name": "Cici B"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := p.Refresh(ctx, res.User.ID); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	identity, err := p.GetIdentity(ctx, sid)
	if err != nil || identity.Name != "Cici B" {
		t.Fatalf("refresh did not update snapshot: %#v %v", identity, err)
	}

	c.t = c.t.Add(8 * time.Hour)
	if p.Check(ctx, sid) {
		t.Fatalf("session should expire after ttl")
	}
	if _, err := p.GetIdentity(ctx, sid); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newTestProvider(t)
	res, err := p.Signup(ctx, SignupInput{Email: "dedi@example.com", Password: "secret1", PhoneNumber: "1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := p.Logout(ctx, res.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if p.Check(ctx, res.SessionID) {
		t.Fatalf("session should be gone after logout")
	}
}

func TestSelectBooth(t *testing.T) {
	ctx := context.Background()
	p, st, _ := newTestProvider(t)
	res, err := p.Signup(ctx, SignupInput{Email: "eka@example.com", Password: "secret1", PhoneNumber: "1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	booths, _ := docpath.BoothCollection(res.User.ID)
	list, _ := st.List(ctx, booths)
	boothID := list[0].ID()

	if _, err := p.SelectBooth(ctx, res.SessionID, "missing"); !errors.Is(err, ErrBoothNotFound) || !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected booth not found, got %v", err)
	}
	if _, err := p.SelectBooth(ctx, res.SessionID, boothID); err != nil {
		t.Fatalf("select: %v", err)
	}
	got, err := p.SelectedBooth(ctx, res.SessionID)
	if err != nil || got != boothID {
		t.Fatalf("expected %s, got %q %v", boothID, got, err)
	}
}

func TestSSOLogin(t *testing.T) {
	ctx := context.Background()
	p, st, _ := newTestProvider(t)
	in := SSOInput{Provider: "google", Subject: "10987", Email: "fani@example.com", Name: "Fani"}

	first, err := p.SSOLogin(ctx, in)
	if err != nil {
		t.Fatalf("sso: %v", err)
	}
	second, err := p.SSOLogin(ctx, in)
	if err != nil {
		t.Fatalf("sso again: %v", err)
	}
	if first.User.ID != second.User.ID {
		t.Fatalf("expected same user, got %s and %s", first.User.ID, second.User.ID)
	}
	if first.SessionID == second.SessionID {
		t.Fatalf("expected a new session per login")
	}
	booths, _ := docpath.BoothCollection(first.User.ID)
	list, _ := st.List(ctx, booths)
	if len(list) != 1 || list[0].Data["name"] != "Booth Pertama" {
		t.Fatalf("expected one first booth, got %v", list)
	}
	if _, err := p.SSOLogin(ctx, SSOInput{Provider: "google"}); err == nil {
		t.Fatalf("expected validation error for missing subject")
	}
}

// interleavingSessions runs afterGet once, between a read and the write
// that follows it.
type interleavingSessions struct {
	*MemorySessionStore
	afterGet func()
}

func (s *interleavingSessions) Get(ctx context.Context, id string) (Session, error) {
	session, err := s.MemorySessionStore.Get(ctx, id)
	if s.afterGet != nil {
		fn := s.afterGet
		s.afterGet = nil
		fn()
	}
	return session, err
}

func TestSnapshotRefreshDoesNotUndoConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	c := &clock{t: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	mem := NewMemorySessionStore()
	mem.now = c.now
	sessions := &interleavingSessions{MemorySessionStore: mem}
	p := NewProvider(st, sessions, Config{BcryptCost: bcrypt.MinCost})
	p.now = c.now

	first, err := p.Signup(ctx, SignupInput{Email: "fani@example.com", Password: "secret1", PhoneNumber: "1"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	c.t = c.t.Add(16 * time.Minute)
	sessions.afterGet = func() { _ = p.Logout(ctx, first.SessionID) }
	if _, err := p.Session(ctx, first.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected refresh of a logged out session to fail, got %v", err)
	}
	if p.Check(ctx, first.SessionID) {
		t.Fatalf("refresh recreated a logged out session")
	}

	second, err := p.Login(ctx, "fani@example.com", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	booths, _ := docpath.BoothCollection(second.User.ID)
	list, _ := st.List(ctx, booths)
	boothID := list[0].ID()
	c.t = c.t.Add(16 * time.Minute)
	sessions.afterGet = func() {
		if _, err := mem.Modify(ctx, second.SessionID, func(s *Session) { s.SelectedBooth = boothID }); err != nil {
			t.Errorf("select booth: %v", err)
		}
	}
	if _, err := p.Session(ctx, second.SessionID); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got, err := p.SelectedBooth(ctx, second.SessionID)
	if err != nil || got != boothID {
		t.Fatalf("refresh dropped the selected booth: %q %v", got, err)
	}
}
