package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"keepr-backend/internal/serviceinfo/domain"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "serviceinfo:"

type redisCacheRepository struct {
	client *redis.Client
}

// NewRedisCacheRepository keeps entries in redis until their ExpiresAt
func NewRedisCacheRepository(client *redis.Client) CacheRepository {
	return &redisCacheRepository{client: client}
}

// NewRedisClient connects using a redis:// URL
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (r *redisCacheRepository) Get(ctx context.Context, key string) (*domain.CacheEntry, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &entry, nil
}

func (r *redisCacheRepository) Put(ctx context.Context, entry *domain.CacheEntry) error {
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return r.client.Set(ctx, redisKeyPrefix+entry.MerchantKey, raw, ttl).Err()
}
