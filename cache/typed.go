package cache

import (
	"context"
	"encoding/json"
	"time"
)

// GetTyped reads key from the manager and decodes the JSON payload into T.
// A payload that fails to decode is a miss, never an error.
func GetTyped[T any](ctx context.Context, m *Manager, key string) (T, bool) {
	var zero T
	data, ok := m.Get(ctx, key)
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false
	}
	return value, true
}

// GetStaleTyped is [GetTyped] against the stale namespace.
func GetStaleTyped[T any](ctx context.Context, m *Manager, key string) (T, bool) {
	var zero T
	data, ok := m.GetStale(ctx, key)
	if !ok {
		return zero, false
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false
	}
	return value, true
}

// SetTyped JSON-encodes value and caches it under key. Values that fail to
// encode are dropped; a cache write must never fail the caller.
func SetTyped[T any](ctx context.Context, m *Manager, key string, value T, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	m.Set(ctx, key, data, ttl)
}
