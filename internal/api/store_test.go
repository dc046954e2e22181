package api

import (
	"context"
	"sync"
	"time"

	"duumgate/internal/cache"
	"duumgate/internal/models"
)

// memStore is an in-process cache.Store for handler tests.
type memStore struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]*models.CacheEntry)}
}

func (m *memStore) Get(_ context.Context, fp string) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[fp]; ok {
		return e, nil
	}
	return nil, cache.ErrMiss
}

func (m *memStore) Put(_ context.Context, fp string, e *models.CacheEntry, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[fp] = e
	return nil
}

func (m *memStore) Available() bool { return true }
func (m *memStore) Close() error    { return nil }

func timeNow() time.Time { return time.Now() }
