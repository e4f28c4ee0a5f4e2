package resource

import (
	"errors"
	"fmt"

	"photobox/internal/store"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrNoBoothSelected = errors.New("no booth selected")
	ErrVoucherExists   = fmt.Errorf("%w: voucher code already exists", store.ErrConflict)
	ErrInvalidSlot     = errors.New("unknown background slot")
	ErrMissingID       = errors.New("id is required")
)
