package store

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Normalize round-trips data through JSON so every backend stores and
// returns the same value types: string, float64, bool, nil, map, slice.
func Normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

// CheckFields rejects empty names, names containing "." and names starting
// with "$". Mongo reads both as operators or nested paths.
func CheckFields(data map[string]any) error {
	for key := range data {
		if key == "" || strings.Contains(key, ".") || strings.HasPrefix(key, "$") {
			return fmt.Errorf("%w: %q", ErrInvalidField, key)
		}
	}
	return nil
}

// NormalizeWrite is Normalize for data about to be written.
func NormalizeWrite(data map[string]any) (map[string]any, error) {
	if err := CheckFields(data); err != nil {
		return nil, err
	}
	return Normalize(data)
}

// Merge copies top-level fields of patch over base. Nested maps are replaced, not merged.
func Merge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Decode converts a document's data into a typed value.
func Decode(doc Document, target any) error {
	raw, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", doc.Path, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode %s: %w", doc.Path, err)
	}
	return nil
}

// Fields converts a typed value into document data.
func Fields(value any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}
