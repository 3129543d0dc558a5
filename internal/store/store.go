package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"facility-finder-backend/internal/model"
)

// Store is a durable string key-value blob store. It has no notion of
// expiry; callers stamp and check freshness themselves.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db, now: time.Now}
}

// Get returns the value stored under key. A missing key is not an error.
func (s *gormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entries []model.CacheEntry
	if err := s.db.WithContext(ctx).Where("cache_key = ?", key).Limit(1).Find(&entries).Error; err != nil {
		return "", false, fmt.Errorf("failed to read cache entry %q: %w", key, err)
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Value, true, nil
}

// Set upserts value under key. The last writer wins.
func (s *gormStore) Set(ctx context.Context, key, value string) error {
	entry := model.CacheEntry{Key: key, Value: value, UpdatedAt: s.now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to write cache entry %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key succeeds.
func (s *gormStore) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("cache_key = ?", key).Delete(&model.CacheEntry{}).Error; err != nil {
		return fmt.Errorf("failed to remove cache entry %q: %w", key, err)
	}
	return nil
}
