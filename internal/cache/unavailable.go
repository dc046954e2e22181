package cache

import (
	"context"
	"time"

	"duumgate/internal/models"
)

type unavailable struct {
	reason string
}

// Unavailable is the cache used when no backend is configured or reachable.
func Unavailable(reason string) Store {
	return unavailable{reason: reason}
}

func (u unavailable) Get(context.Context, string) (*models.CacheEntry, error) {
	return nil, ErrMiss
}

func (u unavailable) Put(context.Context, string, *models.CacheEntry, time.Duration) error {
	return nil
}

func (u unavailable) Available() bool { return false }

func (u unavailable) Close() error { return nil }

func (u unavailable) String() string { return "cache unavailable: " + u.reason }
