package cache

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"duumgate/internal/models"
)

const defaultCleanupInterval = time.Hour

// SQLStore keeps entries in the image_cache table. Expiry is enforced on read
// and expired rows are purged periodically.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewSQLStore wraps a migrated database handle.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: strings.ToLower(driver), now: time.Now}
}

func (s *SQLStore) Get(ctx context.Context, fingerprint string) (*models.CacheEntry, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT entry FROM image_cache WHERE cache_key = ? AND expires_at > ?`,
		Key(fingerprint), s.now().UTC(),
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMiss
		}
		return nil, err
	}
	return decodeEntry(fingerprint, []byte(raw))
}

func (s *SQLStore) Put(ctx context.Context, fingerprint string, entry *models.CacheEntry, ttl time.Duration) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	_, err = s.db.ExecContext(ctx, s.upsertQuery(), Key(fingerprint), string(data), now, now.Add(ttl))
	return err
}

func (s *SQLStore) upsertQuery() string {
	if s.driver == "mysql" {
		return `INSERT INTO image_cache (cache_key, entry, saved_at, expires_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE entry = VALUES(entry), saved_at = VALUES(saved_at), expires_at = VALUES(expires_at)`
	}
	return `INSERT INTO image_cache (cache_key, entry, saved_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET entry = excluded.entry, saved_at = excluded.saved_at, expires_at = excluded.expires_at`
}

func (s *SQLStore) Available() bool { return true }

func (s *SQLStore) Close() error { return s.db.Close() }

// StartCleaner purges expired rows every interval until ctx is done.
func (s *SQLStore) StartCleaner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	go s.cleanupLoop(ctx, interval)
}

func (s *SQLStore) cleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.PurgeExpired(ctx); err != nil {
				log.Printf("cache: purge expired entries error: %v", err)
			}
		}
	}
}

// PurgeExpired deletes expired rows and reports how many were removed.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM image_cache WHERE expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
