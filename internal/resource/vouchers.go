package resource

import (
	"context"
	"strings"

	"photobox/internal/docpath"
	"photobox/internal/store"
	"photobox/internal/validation"
)

type Vouchers struct {
	*Collection
}

type voucherInput struct {
	Code     string   `validate:"required,max=64,excludesall=/"`
	Discount *float64 `validate:"omitempty,gte=0"`
}

func NewVouchers(st store.Store) *Vouchers {
	return &Vouchers{Collection: NewCollection(st, boothSubcollection(docpath.Vouchers))}
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (v *Vouchers) GetOne(ctx context.Context, scope Scope, id string) (Record, error) {
	return v.Collection.GetOne(ctx, scope, NormalizeCode(id))
}

// Create takes the code from "id" or "code". An existing code is ErrVoucherExists.
func (v *Vouchers) Create(ctx context.Context, scope Scope, fields map[string]any) (Record, error) {
	code, _ := fields["id"].(string)
	if code == "" {
		code, _ = fields["code"].(string)
	}
	code = NormalizeCode(code)
	if err := checkVoucher(code, fields); err != nil {
		return nil, err
	}
	data := withoutID(fields)
	delete(data, "code")
	if _, ok := data["is_active"]; !ok {
		data["is_active"] = true
	}
	if _, ok := data["expiry_date"]; !ok {
		data["expiry_date"] = nil
	}
	data["created_at"] = v.timestamp()

	rec, err := v.create(ctx, scope, code, data)
	if isConflict(err) {
		return nil, ErrVoucherExists
	}
	return rec, err
}

func (v *Vouchers) Upsert(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error) {
	code := NormalizeCode(id)
	if err := checkVoucher(code, fields); err != nil {
		return nil, err
	}
	return v.Collection.Upsert(ctx, scope, code, withoutCode(fields))
}

func (v *Vouchers) UpdateExisting(ctx context.Context, scope Scope, id string, fields map[string]any) (Record, error) {
	code := NormalizeCode(id)
	if err := checkVoucher(code, fields); err != nil {
		return nil, err
	}
	return v.Collection.UpdateExisting(ctx, scope, code, withoutCode(fields))
}

func (v *Vouchers) DeleteOne(ctx context.Context, scope Scope, id string) (string, error) {
	return v.Collection.DeleteOne(ctx, scope, NormalizeCode(id))
}

func checkVoucher(code string, fields map[string]any) error {
	in := voucherInput{Code: code}
	if raw, ok := fields["discount"]; ok && raw != nil {
		discount, ok := toFloat(raw)
		if !ok {
			return validation.Field("discount", "number")
		}
		in.Discount = &discount
	}
	return validation.Struct(in)
}

func withoutCode(fields map[string]any) map[string]any {
	out := withoutID(fields)
	delete(out, "code")
	return out
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}
