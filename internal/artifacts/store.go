package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists job objects. Writes are atomic per key: a reader sees either the old
// value or the new one.
type Store interface {
	Put(ctx context.Context, jobID string, key Key, value []byte) error
	// Get fails with *NotFoundError when nothing is stored.
	Get(ctx context.Context, jobID string, key Key) ([]byte, error)
	Exists(ctx context.Context, jobID string, key Key) (bool, error)
}

func PutJSON(ctx context.Context, s Store, jobID string, key Key, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", ObjectName(jobID, key), err)
	}
	return s.Put(ctx, jobID, key, raw)
}

func GetJSON[T any](ctx context.Context, s Store, jobID string, key Key) (T, error) {
	var out T
	raw, err := s.Get(ctx, jobID, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", ObjectName(jobID, key), err)
	}
	return out, nil
}
