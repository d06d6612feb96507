package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"keepr-backend/internal/serviceinfo/domain"
	"keepr-backend/internal/serviceinfo/repository"
	"keepr-backend/pkg/ai"
	"keepr-backend/pkg/apperror"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL          = 24 * time.Hour
	defaultFetchTimeout = 30 * time.Second
	minKeyLength        = 2
)

// LookupUsecase serves merchant contact data, cache first
type LookupUsecase struct {
	cache        repository.CacheRepository
	fetcher      ai.ServiceInfoLookup
	ttl          time.Duration
	fetchTimeout time.Duration
	group        singleflight.Group
	logger       *zap.Logger
	now          func() time.Time
}

func NewLookupUsecase(cache repository.CacheRepository, fetcher ai.ServiceInfoLookup, ttl time.Duration, logger *zap.Logger) *LookupUsecase {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &LookupUsecase{
		cache:        cache,
		fetcher:      fetcher,
		ttl:          ttl,
		fetchTimeout: defaultFetchTimeout,
		logger:       logger.Named("serviceinfo"),
		now:          time.Now,
	}
}

// NormalizeKey is the cache key for a merchant name
func NormalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Lookup returns a cached entry while it is unexpired, otherwise fetches fresh data.
// Fresh data is cached only when it carries at least one contact field.
func (u *LookupUsecase) Lookup(ctx context.Context, rawKey string) (*domain.Result, error) {
	key := NormalizeKey(rawKey)
	if utf8.RuneCountInString(key) < minKeyLength {
		return nil, fmt.Errorf("%w: merchant must be at least %d characters", apperror.ErrInvalidInput, minKeyLength)
	}

	entry, err := u.cache.Get(ctx, key)
	if err != nil {
		u.logger.Warn("cache read failed, fetching", zap.String("key", key), zap.Error(err))
	}
	if entry != nil && u.now().Before(entry.ExpiresAt) {
		return entry.ToResult(domain.SourceCached), nil
	}

	// Concurrent misses for one merchant share a single upstream call. The call outlives any one
	// caller's request so a disconnecting client does not fail the others waiting on it.
	merchant := strings.TrimSpace(rawKey)
	ch := u.group.DoChan(key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.fetchTimeout)
		defer cancel()
		return u.fetch(fetchCtx, key, merchant)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Result), nil
	}
}

func (u *LookupUsecase) fetch(ctx context.Context, key, merchant string) (*domain.Result, error) {
	info, err := u.fetcher.LookupServiceInfo(ctx, merchant)
	if err != nil {
		return nil, fmt.Errorf("%w: service info lookup: %v", apperror.ErrUpstream, err)
	}

	now := u.now()
	entry := &domain.CacheEntry{
		MerchantKey:  key,
		CancelURL:    info.CancelURL,
		SupportURL:   info.SupportURL,
		SupportEmail: info.SupportEmail,
		SupportPhone: info.SupportPhone,
		Confidence:   info.Confidence,
	}
	if !entry.HasContact() {
		return entry.ToResult(domain.SourceFetched), nil
	}

	entry.VerifiedAt = now
	entry.ExpiresAt = now.Add(u.ttl)
	if err := u.cache.Put(ctx, entry); err != nil {
		u.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return entry.ToResult(domain.SourceFetched), nil
}
