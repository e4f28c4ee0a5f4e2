// Package identity signs dashboard users in and keeps their sessions.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"photobox/internal/docpath"
	"photobox/internal/logging"
	"photobox/internal/models"
	"photobox/internal/store"
	"photobox/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrBoothNotFound      = fmt.Errorf("%w: booth", store.ErrNotFound)
)

const (
	signupBoothName = "Generated Booth"
	ssoBoothName    = "Booth Pertama"
	homeRoute       = "/"
)

type Config struct {
	SessionTTL   time.Duration
	RefreshAfter time.Duration
	BcryptCost   int
}

type LoginResult struct {
	SessionID  string    `json:"session_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	RedirectTo string    `json:"redirect_to"`
	User       Snapshot  `json:"user"`
}

type SignupInput struct {
	Email       string `validate:"required,email,max=254"`
	Password    string `validate:"required,min=6,max=72"`
	PhoneNumber string `validate:"required,max=32"`
	Name        string `validate:"max=120"`
}

type SSOInput struct {
	Provider string `validate:"required,max=64,excludesall=:/"`
	Subject  string `validate:"required,max=256,excludesall=/"`
	Email    string `validate:"omitempty,email"`
	Name     string `validate:"max=120"`
}

type Provider struct {
	store    store.Store
	sessions SessionStore
	cfg      Config
	now      func() time.Time
	newID    func() string
}

func NewProvider(st store.Store, sessions SessionStore, cfg Config) *Provider {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 8 * time.Hour
	}
	if cfg.RefreshAfter <= 0 {
		cfg.RefreshAfter = 15 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Provider{
		store:    st,
		sessions: sessions,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

func credentialPath(email string) (docpath.Path, error) {
	return docpath.Doc(docpath.Credentials, strings.ToLower(strings.TrimSpace(email)))
}

func userPath(userID string) (docpath.Path, error) {
	return docpath.Doc(docpath.Users, userID)
}

func (p *Provider) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	path, err := credentialPath(email)
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	doc, err := p.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	var cred models.Credential
	if err := store.Decode(doc, &cred); err != nil {
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if err := p.ensureUser(ctx, cred.UserID, email, ""); err != nil {
		return LoginResult{}, err
	}
	return p.startSession(ctx, cred.UserID)
}

// Signup registers an email account and gives it a first booth.
func (p *Provider) Signup(ctx context.Context, in SignupInput) (LoginResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return LoginResult{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), p.cfg.BcryptCost)
	if err != nil {
		return LoginResult{}, fmt.Errorf("hash password: %w", err)
	}

	userID := p.newID()
	path, err := credentialPath(in.Email)
	if err != nil {
		return LoginResult{}, err
	}
	_, err = p.store.Create(ctx, path, map[string]any{
		"user_id":       userID,
		"password_hash": string(hash),
		"created_at":    p.timestamp(),
	})
	if errors.Is(err, store.ErrConflict) {
		return LoginResult{}, ErrEmailTaken
	}
	if err != nil {
		return LoginResult{}, err
	}

	name := in.Name
	if name == "" {
		name = localPart(in.Email)
	}
	if err := p.createAccount(ctx, userID, models.User{Email: in.Email, Name: name, PhoneNumber: in.PhoneNumber}, signupBoothName); err != nil {
		return LoginResult{}, err
	}
	return p.startSession(ctx, userID)
}

// SSOLogin trusts provider and subject as asserted by the fronting proxy.
func (p *Provider) SSOLogin(ctx context.Context, in SSOInput) (LoginResult, error) {
	in.Provider = strings.TrimSpace(in.Provider)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return LoginResult{}, err
	}
	path, err := docpath.Doc(docpath.Identities, in.Provider+":"+in.Subject)
	if err != nil {
		return LoginResult{}, err
	}

	doc, err := p.store.Get(ctx, path)
	switch {
	case err == nil:
		var mapping models.Identity
		if err := store.Decode(doc, &mapping); err != nil {
			return LoginResult{}, err
		}
		if err := p.ensureUser(ctx, mapping.UserID, in.Email, in.Name); err != nil {
			return LoginResult{}, err
		}
		return p.startSession(ctx, mapping.UserID)
	case !errors.Is(err, store.ErrNotFound):
		return LoginResult{}, err
	}

	userID := p.newID()
	_, err = p.store.Create(ctx, path, map[string]any{"user_id": userID})
	if errors.Is(err, store.ErrConflict) {
		// Another request mapped this subject first.
		return p.SSOLogin(ctx, in)
	}
	if err != nil {
		return LoginResult{}, err
	}
	name := in.Name
	if name == "" {
		name = localPart(in.Email)
	}
	if err := p.createAccount(ctx, userID, models.User{Email: in.Email, Name: name}, ssoBoothName); err != nil {
		return LoginResult{}, err
	}
	return p.startSession(ctx, userID)
}

func (p *Provider) createAccount(ctx context.Context, userID string, user models.User, boothName string) error {
	now := p.timestamp()
	upath, err := userPath(userID)
	if err != nil {
		return err
	}
	if _, err := p.store.Set(ctx, upath, map[string]any{
		"email":             user.Email,
		"name":              user.Name,
		"role":              models.RoleClient,
		"phoneNumber":       user.PhoneNumber,
		"profilePictureUrl": "",
		"createdAt":         now,
	}, true); err != nil {
		return err
	}
	cpath, err := docpath.Resolve(userID, "", "", "")
	if err != nil {
		return err
	}
	if _, err := p.store.Set(ctx, cpath, map[string]any{
		"name":           user.Name,
		"xendit_api_key": "",
		"created_at":     now,
	}, true); err != nil {
		return err
	}
	bpath, err := docpath.Resolve(userID, p.newID(), "", "")
	if err != nil {
		return err
	}
	_, err = p.store.Create(ctx, bpath, map[string]any{
		"name":       boothName,
		"created_at": now,
		"settings":   map[string]any{},
	})
	return err
}

// ensureUser creates the user and client documents on first sign in.
func (p *Provider) ensureUser(ctx context.Context, userID, email, name string) error {
	upath, err := userPath(userID)
	if err != nil {
		return err
	}
	now := p.timestamp()
	_, err = p.store.Create(ctx, upath, map[string]any{
		"email":     email,
		"name":      name,
		"role":      models.RoleClient,
		"createdAt": now,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	cpath, err := docpath.Resolve(userID, "", "", "")
	if err != nil {
		return err
	}
	_, err = p.store.Create(ctx, cpath, map[string]any{
		"name":           name,
		"xendit_api_key": "",
		"created_at":     now,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	return err
}

func (p *Provider) startSession(ctx context.Context, userID string) (LoginResult, error) {
	snapshot, err := p.loadSnapshot(ctx, userID)
	if err != nil {
		return LoginResult{}, err
	}
	now := p.now()
	session := Session{
		ID:          p.newID(),
		UserID:      userID,
		Snapshot:    snapshot,
		RefreshedAt: now,
		CreatedAt:   now,
		ExpiresAt:   now.Add(p.cfg.SessionTTL),
	}
	if err := p.sessions.Save(ctx, session); err != nil {
		return LoginResult{}, err
	}
	logging.Info().Str("user_id", userID).Str("role", snapshot.Role).Msg("session started")
	return LoginResult{SessionID: session.ID, ExpiresAt: session.ExpiresAt, RedirectTo: homeRoute, User: snapshot}, nil
}

func (p *Provider) loadSnapshot(ctx context.Context, userID string) (Snapshot, error) {
	path, err := userPath(userID)
	if err != nil {
		return Snapshot{}, err
	}
	doc, err := p.store.Get(ctx, path)
	if err != nil {
		return Snapshot{}, err
	}
	var user models.User
	if err := store.Decode(doc, &user); err != nil {
		return Snapshot{}, err
	}
	role := user.Role
	if role == "" {
		role = models.RoleClient
	}
	return Snapshot{
		ID:                userID,
		Role:              role,
		Email:             user.Email,
		Name:              user.Name,
		ProfilePictureURL: user.ProfilePictureURL,
		PhoneNumber:       user.PhoneNumber,
	}, nil
}

func (p *Provider) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return p.sessions.Delete(ctx, sessionID)
}

// Session returns a live session, reloading the snapshot once it is older than RefreshAfter.
func (p *Provider) Session(ctx context.Context, sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, ErrSessionNotFound
	}
	session, err := p.sessions.Get(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	now := p.now()
	if session.Expired(now) {
		_ = p.sessions.Delete(ctx, sessionID)
		return Session{}, ErrSessionNotFound
	}
	if now.Sub(session.RefreshedAt) < p.cfg.RefreshAfter {
		return session, nil
	}
	snapshot, err := p.loadSnapshot(ctx, session.UserID)
	if errors.Is(err, store.ErrNotFound) {
		_ = p.sessions.Delete(ctx, sessionID)
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		logging.Warn().Err(err).Str("user_id", session.UserID).Msg("snapshot refresh failed, serving cached copy")
		return session, nil
	}
	return p.sessions.Modify(ctx, sessionID, func(s *Session) {
		s.Snapshot = snapshot
		s.RefreshedAt = now
	})
}

func (p *Provider) Check(ctx context.Context, sessionID string) bool {
	_, err := p.Session(ctx, sessionID)
	return err == nil
}

func (p *Provider) GetIdentity(ctx context.Context, sessionID string) (Snapshot, error) {
	session, err := p.Session(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return session.Snapshot, nil
}

func (p *Provider) GetPermissions(ctx context.Context, sessionID string) (string, error) {
	session, err := p.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.Snapshot.Role, nil
}

// Refresh reloads the snapshot of every live session of the user.
func (p *Provider) Refresh(ctx context.Context, userID string) error {
	sessions, err := p.sessions.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	snapshot, err := p.loadSnapshot(ctx, userID)
	if err != nil {
		return err
	}
	now := p.now()
	for _, session := range sessions {
		_, err := p.sessions.Modify(ctx, session.ID, func(s *Session) {
			s.Snapshot = snapshot
			s.RefreshedAt = now
		})
		if err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}
	return nil
}

func (p *Provider) SelectBooth(ctx context.Context, sessionID, boothID string) (Session, error) {
	session, err := p.Session(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	path, err := docpath.Resolve(session.UserID, boothID, "", "")
	if err != nil {
		return Session{}, err
	}
	if _, err := p.store.Get(ctx, path); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrBoothNotFound
		}
		return Session{}, err
	}
	return p.sessions.Modify(ctx, sessionID, func(s *Session) {
		s.SelectedBooth = boothID
	})
}

func (p *Provider) SelectedBooth(ctx context.Context, sessionID string) (string, error) {
	session, err := p.Session(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.SelectedBooth, nil
}

// SetPassword creates or replaces the credentials for email. Used by boothctl.
func (p *Provider) SetPassword(ctx context.Context, email, password, userID string) (string, error) {
	if err := validation.Struct(struct {
		Email    string `validate:"required,email"`
		Password string `validate:"required,min=6,max=72"`
	}{email, password}); err != nil {
		return "", err
	}
	path, err := credentialPath(email)
	if err != nil {
		return "", err
	}
	if userID == "" {
		if doc, err := p.store.Get(ctx, path); err == nil {
			userID, _ = doc.Data["user_id"].(string)
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", err
		}
	}
	if userID == "" {
		userID = p.newID()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	_, err = p.store.Set(ctx, path, map[string]any{
		"user_id":       userID,
		"password_hash": string(hash),
		"created_at":    p.timestamp(),
	}, false)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (p *Provider) timestamp() string {
	return p.now().Format(time.RFC3339)
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}
