package repository

import (
	"context"
	"errors"
	"time"

	"keepr-backend/internal/serviceinfo/domain"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheRepository stores service-info entries by normalized merchant key.
// Get returns expired entries too; freshness is decided by the caller's clock.
type CacheRepository interface {
	Get(ctx context.Context, key string) (*domain.CacheEntry, error)
	Put(ctx context.Context, entry *domain.CacheEntry) error
}

type gormCacheRepository struct {
	db *gorm.DB
}

func NewGormCacheRepository(db *gorm.DB) CacheRepository {
	return &gormCacheRepository{db: db}
}

func (r *gormCacheRepository) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	err := r.db.WithContext(ctx).Where("merchant_key = ?", key).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *gormCacheRepository) Put(ctx context.Context, entry *domain.CacheEntry) error {
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	// INSERT ... ON CONFLICT (merchant_key) DO UPDATE
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "merchant_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"cancel_url", "support_url", "support_email", "support_phone",
			"confidence", "verified_at", "expires_at", "updated_at",
		}),
	}).Create(entry).Error
}

// tieredCacheRepository reads a fast front tier before the durable store.
// The durable store is authoritative; front tier failures only cost a slower read.
type tieredCacheRepository struct {
	front  CacheRepository
	back   CacheRepository
	logger *zap.Logger
}

func NewTieredCacheRepository(front, back CacheRepository, logger *zap.Logger) CacheRepository {
	return &tieredCacheRepository{front: front, back: back, logger: logger.Named("serviceinfo-cache")}
}

func (r *tieredCacheRepository) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	entry, err := r.front.Get(ctx, key)
	if err != nil {
		r.logger.Warn("front cache read failed", zap.String("key", key), zap.Error(err))
	}
	if entry != nil {
		return entry, nil
	}

	entry, err = r.back.Get(ctx, key)
	if err != nil || entry == nil {
		return entry, err
	}

	if err := r.front.Put(ctx, entry); err != nil {
		r.logger.Warn("front cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return entry, nil
}

func (r *tieredCacheRepository) Put(ctx context.Context, entry *domain.CacheEntry) error {
	if err := r.back.Put(ctx, entry); err != nil {
		return err
	}
	if err := r.front.Put(ctx, entry); err != nil {
		r.logger.Warn("front cache write failed", zap.String("key", entry.MerchantKey), zap.Error(err))
	}
	return nil
}
