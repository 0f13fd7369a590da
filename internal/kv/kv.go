// Package kv provides the small key-value persistence layer the deck store
// writes its JSON blob into.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrQuotaExceeded reports that the backend has no room for the value.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Store is a string key-value store. Get reports absence with ok=false.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

type quotaStore struct {
	Store
	maxBytes int
}

// WithQuota wraps a store so that values larger than maxBytes are rejected
// with ErrQuotaExceeded before reaching the backend.
func WithQuota(store Store, maxBytes int) Store {
	return &quotaStore{Store: store, maxBytes: maxBytes}
}

func (q *quotaStore) Set(ctx context.Context, key, value string) error {
	if size := len(key) + len(value); size > q.maxBytes {
		return fmt.Errorf("value of %d bytes over %d byte limit: %w", size, q.maxBytes, ErrQuotaExceeded)
	}
	return q.Store.Set(ctx, key, value)
}
