// Package cache stores per-image extraction results keyed by content fingerprint.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"duumgate/internal/config"
	"duumgate/internal/models"
	"duumgate/internal/redis"
	"duumgate/internal/storage"
)

// KeyPrefix namespaces image result keys.
const KeyPrefix = "img:"

// ErrMiss is returned by Get when no live entry exists for a fingerprint.
var ErrMiss = errors.New("cache miss")

// Store is the result cache. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error)
	Put(ctx context.Context, fingerprint string, entry *models.CacheEntry, ttl time.Duration) error
	// Available reports whether a backend is configured; when false every Get
	// misses and every Put is skipped.
	Available() bool
	Close() error
}

// Key returns the storage key for a fingerprint.
func Key(fingerprint string) string {
	return KeyPrefix + fingerprint
}

// Open decides once per process which backend serves the cache. A backend that
// cannot be reached degrades to Unavailable instead of failing startup.
func Open(ctx context.Context, cfg *config.Config) Store {
	switch cfg.Cache.Backend {
	case "redis":
		client, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Printf("cache: redis unavailable, caching disabled: %v", err)
			return Unavailable("redis unreachable")
		}
		return NewRedisStore(client)
	case "sql":
		driver := cfg.Cache.Database
		db, err := storage.Open(driver, cfg)
		if err != nil {
			log.Printf("cache: database unavailable, caching disabled: %v", err)
			return Unavailable("database unreachable")
		}
		if err := storage.Migrate(db, driver); err != nil {
			db.Close()
			log.Printf("cache: migrate failed, caching disabled: %v", err)
			return Unavailable("database migration failed")
		}
		store := NewSQLStore(db, driver)
		store.StartCleaner(ctx, time.Duration(cfg.Cache.CleanupMinutes)*time.Minute)
		return store
	default:
		return Unavailable("no cache backend configured")
	}
}

// NewEntry stamps an item for persistence.
func NewEntry(fingerprint string, item models.ExtractionItem, now time.Time) *models.CacheEntry {
	return &models.CacheEntry{
		Version:     models.CacheEntryVersion,
		SavedAt:     now.UTC(),
		Fingerprint: fingerprint,
		Item:        item.Clone(),
	}
}

func encodeEntry(entry *models.CacheEntry) ([]byte, error) {
	if entry == nil {
		return nil, errors.New("nil cache entry")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return data, nil
}

// decodeEntry treats entries from another layout version, or stored under a
// different fingerprint, as absent.
func decodeEntry(fingerprint string, data []byte) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Version != models.CacheEntryVersion || entry.Fingerprint != fingerprint {
		return nil, ErrMiss
	}
	entry.Item.Normalize()
	return &entry, nil
}
