package cache

import (
	"context"
	"errors"
	"time"

	"duumgate/internal/models"
	"duumgate/internal/redis"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore serves the cache from redis, one key per fingerprint with a TTL.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	raw, err := s.client.Get(ctx, Key(fingerprint))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return decodeEntry(fingerprint, raw)
}

func (s *redisStore) Put(ctx context.Context, fingerprint string, entry *models.CacheEntry, ttl time.Duration) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key(fingerprint), data, ttl)
}

func (s *redisStore) Available() bool { return true }

func (s *redisStore) Close() error { return s.client.Close() }
