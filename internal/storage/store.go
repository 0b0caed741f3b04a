// Package storage defines the key-value blob store the core persists into and
// the unit of work that serializes every read-modify-write against it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"flock/pkg/platform/sentinel"
)

// Store is a plain blob store. Get returns sentinel.ErrNotFound for a missing
// key. Implementations give no transactional guarantee across keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// BatchStore is implemented by backends that can write several keys as one
// atomic step. The unit of work prefers it on commit.
type BatchStore interface {
	Store
	SetBatch(ctx context.Context, values map[string][]byte) error
}

// GetJSON decodes the blob at key into a T. found is false when the key does
// not exist, in which case the zero T is returned with a nil error.
func GetJSON[T any](ctx context.Context, s Store, key string) (value T, found bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("get %s: %w", key, err)
	}
	if len(raw) == 0 {
		return value, false, nil
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, true, nil
}

// PutJSON encodes v and stores it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// AddToIndex appends id to the string list stored at key unless present.
func AddToIndex(ctx context.Context, s Store, key, id string) error {
	ids, _, err := GetJSON[[]string](ctx, s, key)
	if err != nil {
		return err
	}
	if slices.Contains(ids, id) {
		return nil
	}
	return PutJSON(ctx, s, key, append(ids, id))
}

// ReadIndex returns the string list stored at key, empty when absent.
func ReadIndex(ctx context.Context, s Store, key string) ([]string, error) {
	ids, _, err := GetJSON[[]string](ctx, s, key)
	return ids, err
}
