package resource

import (
	"context"

	"photobox/internal/docpath"
	"photobox/internal/store"
)

// Slots are the screens a booth shows a background on, in display order.
var Slots = []string{"home", "start", "voucher", "succeed", "qris"}

func ValidSlot(slot string) bool {
	for _, s := range Slots {
		if s == slot {
			return true
		}
	}
	return false
}

type Backgrounds struct {
	*Collection
}

func NewBackgrounds(st store.Store) *Backgrounds {
	return &Backgrounds{Collection: NewCollection(st, boothSubcollection(docpath.Backgrounds))}
}

// GetList always returns every slot. Slots never written come back inactive.
func (b *Backgrounds) GetList(ctx context.Context, scope Scope) (List, error) {
	stored, err := b.Collection.GetList(ctx, scope)
	if err != nil {
		return List{}, err
	}
	bySlot := make(map[string]Record, len(stored.Data))
	for _, rec := range stored.Data {
		bySlot[rec.ID()] = rec
	}
	out := List{Data: make([]Record, 0, len(Slots))}
	for _, slot := range Slots {
		rec, ok := bySlot[slot]
		if !ok {
			rec = Record{"id": slot, "url": "", "is_active": false}
		}
		out.Data = append(out.Data, rec)
	}
	out.Total = len(out.Data)
	return out, nil
}

func (b *Backgrounds) GetOne(ctx context.Context, scope Scope, slot string) (Record, error) {
	if !ValidSlot(slot) {
		return nil, ErrInvalidSlot
	}
	return b.Collection.GetOne(ctx, scope, slot)
}

func (b *Backgrounds) Create(ctx context.Context, scope Scope, fields map[string]any) (Record, error) {
	slot, _ := fields["id"].(string)
	if slot == "" {
		slot, _ = fields["slot"].(string)
	}
	if !ValidSlot(slot) {
		return nil, ErrInvalidSlot
	}
	return b.create(ctx, scope, slot, b.stamp(fields))
}

func (b *Backgrounds) Upsert(ctx context.Context, scope Scope, slot string, fields map[string]any) (Record, error) {
	if !ValidSlot(slot) {
		return nil, ErrInvalidSlot
	}
	return b.Collection.Upsert(ctx, scope, slot, b.stamp(fields))
}

func (b *Backgrounds) UpdateExisting(ctx context.Context, scope Scope, slot string, fields map[string]any) (Record, error) {
	if !ValidSlot(slot) {
		return nil, ErrInvalidSlot
	}
	return b.Collection.UpdateExisting(ctx, scope, slot, b.stamp(fields))
}

func (b *Backgrounds) DeleteOne(ctx context.Context, scope Scope, slot string) (string, error) {
	if !ValidSlot(slot) {
		return "", ErrInvalidSlot
	}
	return b.Collection.DeleteOne(ctx, scope, slot)
}

func (b *Backgrounds) stamp(fields map[string]any) map[string]any {
	out := withoutID(fields)
	delete(out, "slot")
	out["updated_at"] = b.timestamp()
	return out
}
