// Package boothtoken trades a booth code for a signed booth session token.
package boothtoken

import (
	"context"
	"errors"
	"fmt"
	"time"

	"photobox/internal/boothcode"
	"photobox/internal/docpath"
	"photobox/internal/models"
	"photobox/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidArgument = errors.New("booth code is required")
	ErrBoothNotFound   = errors.New("booth code not found")
	ErrInvalidToken    = errors.New("invalid booth token")
)

type Booth struct {
	ClientID string
	BoothID  string
}

type Finder interface {
	FindBoothByCode(ctx context.Context, code string) (Booth, error)
}

type Claims struct {
	ClientID string `json:"clientId"`
	BoothID  string `json:"boothId"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Token struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

type Service struct {
	finder Finder
	cfg    Config
	now    func() time.Time
}

func NewService(finder Finder, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Service{finder: finder, cfg: cfg, now: time.Now}
}

func (s *Service) Exchange(ctx context.Context, code string) (Token, error) {
	code = boothcode.Normalize(code)
	if code == "" || !boothcode.Valid(code) {
		return Token{}, ErrInvalidArgument
	}
	booth, err := s.finder.FindBoothByCode(ctx, code)
	if err != nil {
		return Token{}, err
	}

	now := s.now()
	expires := now.Add(s.cfg.TTL)
	claims := Claims{
		ClientID: booth.ClientID,
		BoothID:  booth.BoothID,
		Role:     models.RolePhotobooth,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "booth-session-" + booth.BoothID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign booth token: %w", err)
	}
	return Token{Token: signed, ExpiresAt: expires.UTC()}, nil
}

func (s *Service) Verify(token string) (Claims, error) {
	claims := Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Role != models.RolePhotobooth || claims.ClientID == "" || claims.BoothID == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// StoreFinder looks codes up across every client's Booths collection.
type StoreFinder struct {
	store store.Store
}

func NewStoreFinder(st store.Store) *StoreFinder {
	return &StoreFinder{store: st}
}

func (f *StoreFinder) FindBoothByCode(ctx context.Context, code string) (Booth, error) {
	docs, err := f.store.FindInGroup(ctx, docpath.Booths, "boothCode", code, 1)
	if err != nil {
		return Booth{}, err
	}
	if len(docs) == 0 {
		return Booth{}, ErrBoothNotFound
	}
	clientID, ok := docs[0].Path.Owner()
	if !ok {
		return Booth{}, ErrBoothNotFound
	}
	return Booth{ClientID: clientID, BoothID: docs[0].ID()}, nil
}
