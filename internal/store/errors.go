package store

import "errors"

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document already exists")
	// ErrInvalidField is a top-level field name that cannot be stored the
	// same way on every backend.
	ErrInvalidField = errors.New("invalid field name")
)
