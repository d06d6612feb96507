package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"keepr-backend/internal/serviceinfo/domain"
	"keepr-backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

func newGormCache(t *testing.T) CacheRepository {
	t.Helper()
	db, err := database.NewSQLiteConnection(":memory:", gormlogger.Silent)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.CacheEntry{}))
	return NewGormCacheRepository(db)
}

func TestGormCachePutReplaces(t *testing.T) {
	cache := newGormCache(t)
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC()

	require.NoError(t, cache.Put(ctx, &domain.CacheEntry{MerchantKey: "spotify", SupportURL: "https://old", ExpiresAt: expires}))
	require.NoError(t, cache.Put(ctx, &domain.CacheEntry{MerchantKey: "spotify", SupportURL: "https://new", ExpiresAt: expires}))

	got, err := cache.Get(ctx, "spotify")
	require.NoError(t, err)
	assert.Equal(t, "https://new", got.SupportURL)

	missing, err := cache.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

type mapCache struct {
	entries map[string]*domain.CacheEntry
	failGet bool
}

func (m *mapCache) Get(_ context.Context, key string) (*domain.CacheEntry, error) {
	if m.failGet {
		return nil, errors.New("connection refused")
	}
	return m.entries[key], nil
}

func (m *mapCache) Put(_ context.Context, e *domain.CacheEntry) error {
	m.entries[e.MerchantKey] = e
	return nil
}

func TestTieredCache(t *testing.T) {
	ctx := context.Background()
	front := &mapCache{entries: map[string]*domain.CacheEntry{}}
	back := newGormCache(t)
	cache := NewTieredCacheRepository(front, back, zap.NewNop())

	entry := &domain.CacheEntry{MerchantKey: "hulu", CancelURL: "https://hulu/cancel", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, cache.Put(ctx, entry))
	assert.Contains(t, front.entries, "hulu")

	// a cold front tier is filled from the durable store
	delete(front.entries, "hulu")
	got, err := cache.Get(ctx, "hulu")
	require.NoError(t, err)
	assert.Equal(t, "https://hulu/cancel", got.CancelURL)
	assert.Contains(t, front.entries, "hulu")

	front.failGet = true
	got, err = cache.Get(ctx, "hulu")
	require.NoError(t, err, "front tier failures fall through")
	assert.NotNil(t, got)
}

func TestRedisCache(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()

	client, err := NewRedisClient(ctx, redisURL)
	require.NoError(t, err)
	defer client.Close()
	cache := NewRedisCacheRepository(client)

	key := "test-" + time.Now().Format("150405.000000")
	require.NoError(t, cache.Put(ctx, &domain.CacheEntry{MerchantKey: key, SupportEmail: "help@example.com", ExpiresAt: time.Now().Add(time.Minute)}))
	defer client.Del(ctx, redisKeyPrefix+key)

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "help@example.com", got.SupportEmail)

	// already-expired entries are not written
	require.NoError(t, cache.Put(ctx, &domain.CacheEntry{MerchantKey: key + "-old", ExpiresAt: time.Now().Add(-time.Minute)}))
	missing, err := cache.Get(ctx, key+"-old")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
