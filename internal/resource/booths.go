package resource

import (
	"context"
	"errors"
	"fmt"

	"photobox/internal/boothcode"
	"photobox/internal/docpath"
	"photobox/internal/store"
	"photobox/internal/validation"
)

const maxCodeAttempts = 8

var ErrCodeExhausted = errors.New("could not find an unused booth code")

type Booths struct {
	*Collection
	generate func() (string, error)
}

type boothInput struct {
	Name  string   `validate:"omitempty,max=120"`
	Price *float64 `validate:"omitempty,gte=0"`
}

func NewBooths(st store.Store) *Booths {
	return &Booths{
		Collection: NewCollection(st, func(scope Scope) (docpath.Path, error) {
			return docpath.BoothCollection(scope.ClientID)
		}),
		generate: boothcode.Generate,
	}
}

func (b *Booths) Create(ctx context.Context, scope Scope, fields map[string]any) (Record, error) {
	if err := checkBooth(fields); err != nil {
		return nil, err
	}
	data := writableBoothFields(withoutID(fields))
	if _, ok := data["settings"]; !ok {
		data["settings"] = map[string]any{}
	}
	data["created_at"] = b.timestamp()
	id, _ := fields["id"].(string)
	if id == "" {
		id = b.newID()
	}
	return b.create(ctx, scope, id, data)
}

func (b *Booths) Upsert(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error) {
	if err := checkBooth(fields); err != nil {
		return nil, err
	}
	return b.Collection.Upsert(ctx, scope, id, writableBoothFields(fields))
}

func (b *Booths) UpdateExisting(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error) {
	if err := checkBooth(fields); err != nil {
		return nil, err
	}
	return b.Collection.UpdateExisting(ctx, scope, id, writableBoothFields(fields))
}

// DeleteOne removes the booth with its vouchers and backgrounds.
func (b *Booths) DeleteOne(ctx context.Context, scope Scope, id string) (string, error) {
	path, err := b.doc(scope, id)
	if err != nil {
		return "", err
	}
	if _, err := b.store.DeleteTree(ctx, path); err != nil {
		return "", err
	}
	return id, nil
}

// AssignCode gives the booth a code no other booth holds.
func (b *Booths) AssignCode(ctx context.Context, scope Scope, id string) (string, error) {
	path, err := b.doc(scope, id)
	if err != nil {
		return "", err
	}
	if _, err := b.store.Get(ctx, path); err != nil {
		return "", err
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := b.generate()
		if err != nil {
			return "", err
		}
		taken, err := b.store.FindInGroup(ctx, docpath.Booths, "boothCode", code, 1)
		if err != nil {
			return "", fmt.Errorf("check booth code: %w", err)
		}
		if len(taken) > 0 {
			continue
		}
		if _, err := b.store.Update(ctx, path, map[string]any{"boothCode": code}); err != nil {
			return "", err
		}
		return code, nil
	}
	return "", ErrCodeExhausted
}

// writableBoothFields drops the fields owners may not set: boothCode only
// changes through AssignCode and created_at is stamped on create.
func writableBoothFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "boothCode" || k == "created_at" {
			continue
		}
		out[k] = v
	}
	return out
}

func checkBooth(fields map[string]any) error {
	in := boothInput{}
	if name, ok := fields["name"].(string); ok {
		in.Name = name
	}
	if settings, ok := fields["settings"].(map[string]any); ok {
		if raw, ok := settings["price"]; ok && raw != nil {
			price, ok := toFloat(raw)
			if !ok {
				return validation.Field("price", "number")
			}
			in.Price = &price
		}
	}
	return validation.Struct(in)
}
