// Package account edits the signed-in user's profile and lists users for admins.
package account

import (
	"context"
	"errors"
	"strings"

	"photobox/internal/docpath"
	"photobox/internal/models"
	"photobox/internal/store"
	"photobox/internal/validation"
)

var ErrNotFound = store.ErrNotFound

// Refresher rewrites cached session snapshots after a profile change.
type Refresher interface {
	Refresh(ctx context.Context, userID string) error
}

type ProfileUpdate struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=120"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=32"`
}

type Service struct {
	store    store.Store
	sessions Refresher
}

func NewService(st store.Store, sessions Refresher) *Service {
	return &Service{store: st, sessions: sessions}
}

func (s *Service) Get(ctx context.Context, userID string) (models.User, error) {
	path, err := userPath(userID)
	if err != nil {
		return models.User{}, err
	}
	doc, err := s.store.Get(ctx, path)
	if err != nil {
		return models.User{}, err
	}
	return decodeUser(doc)
}

func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (models.User, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if in.PhoneNumber != nil {
		trimmed := strings.TrimSpace(*in.PhoneNumber)
		in.PhoneNumber = &trimmed
	}
	if err := validation.Struct(in); err != nil {
		return models.User{}, err
	}
	fields := map[string]any{}
	if in.Name != nil {
		fields["name"] = *in.Name
	}
	if in.PhoneNumber != nil {
		fields["phoneNumber"] = *in.PhoneNumber
	}
	if len(fields) == 0 {
		return s.Get(ctx, userID)
	}
	return s.update(ctx, userID, fields)
}

func (s *Service) SetProfilePicture(ctx context.Context, userID, url string) (models.User, error) {
	return s.update(ctx, userID, map[string]any{"profilePictureUrl": url})
}

func (s *Service) SetRole(ctx context.Context, userID, role string) (models.User, error) {
	switch role {
	case models.RoleClient, models.RoleAdmin:
	default:
		return models.User{}, validation.Field("role", "oneof")
	}
	return s.update(ctx, userID, map[string]any{"role": role})
}

func (s *Service) update(ctx context.Context, userID string, fields map[string]any) (models.User, error) {
	path, err := userPath(userID)
	if err != nil {
		return models.User{}, err
	}
	doc, err := s.store.Update(ctx, path, fields)
	if err != nil {
		return models.User{}, err
	}
	if s.sessions != nil {
		if err := s.sessions.Refresh(ctx, userID); err != nil {
			return models.User{}, err
		}
	}
	return decodeUser(doc)
}

// SetXenditKey stores the owner's gateway key on their Clients document.
func (s *Service) SetXenditKey(ctx context.Context, userID, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return validation.Field("xendit_api_key", "required")
	}
	path, err := docpath.Resolve(userID, "", "", "")
	if err != nil {
		return err
	}
	_, err = s.store.Set(ctx, path, map[string]any{"xendit_api_key": key}, true)
	return err
}

// HasXenditKey reports whether a key is stored, without returning it.
func (s *Service) HasXenditKey(ctx context.Context, userID string) (bool, error) {
	path, err := docpath.Resolve(userID, "", "", "")
	if err != nil {
		return false, err
	}
	doc, err := s.store.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, field := range []string{"xendit_api_key", "xenditApiKey"} {
		if key, ok := doc.Data[field].(string); ok && strings.TrimSpace(key) != "" {
			return true, nil
		}
	}
	return false, nil
}

// ListUsers returns every user with a booth count. Documents with neither a
// name nor an email are skipped.
func (s *Service) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	users, err := docpath.Collection(docpath.Users)
	if err != nil {
		return nil, err
	}
	docs, err := s.store.List(ctx, users)
	if err != nil {
		return nil, err
	}
	out := make([]models.UserSummary, 0, len(docs))
	for _, doc := range docs {
		name, _ := doc.Data["name"].(string)
		email, _ := doc.Data["email"].(string)
		if name == "" && email == "" {
			continue
		}
		role, _ := doc.Data["role"].(string)
		created, _ := doc.Data["createdAt"].(string)
		booths, err := docpath.BoothCollection(doc.ID())
		if err != nil {
			return nil, err
		}
		owned, err := s.store.List(ctx, booths)
		if err != nil {
			return nil, err
		}
		out = append(out, models.UserSummary{
			UserID:     doc.ID(),
			Name:       name,
			Email:      email,
			Role:       role,
			BoothCount: len(owned),
			CreatedAt:  created,
		})
	}
	return out, nil
}

func userPath(userID string) (docpath.Path, error) {
	if userID == "" {
		return docpath.Path{}, docpath.ErrAuthenticationRequired
	}
	return docpath.Doc(docpath.Users, userID)
}

func decodeUser(doc store.Document) (models.User, error) {
	var user models.User
	if err := store.Decode(doc, &user); err != nil {
		return models.User{}, err
	}
	user.UserID = doc.ID()
	if user.Role == "" {
		user.Role = models.RoleClient
	}
	return user, nil
}
