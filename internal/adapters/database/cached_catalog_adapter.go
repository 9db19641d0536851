package database

import (
	"context"
	"encoding/json"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
)

// Cache TTLs (in seconds)
const (
	serviceByIDTTL  = 300
	providerByIDTTL = 300
)

// readThrough returns the cached JSON value at key or loads, caches and returns it.
// The cache write is synchronous so an invalidation issued right after cannot be overtaken.
func readThrough[T any](ctx context.Context, cache providers.CacheProvider, metrics *observability.Metrics, keyspace, key string, ttl int, load func() (*T, error)) (*T, error) {
	logger := observability.LoggerFromContext(ctx)

	if cached, err := cache.Get(ctx, key); err == nil {
		var value T
		if err := json.Unmarshal(cached, &value); err == nil {
			observability.RecordCacheHit(ctx, metrics, keyspace)
			return &value, nil
		}
		logger.Warn().Err(err).Str("key", key).Msg("failed to unmarshal cached entry")
	}
	observability.RecordCacheMiss(ctx, metrics, keyspace)

	value, err := load()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(value); err == nil {
		if err := cache.Set(ctx, key, data, ttl); err != nil {
			logger.Warn().Err(err).Str("key", key).Msg("failed to cache entry")
		}
	}
	return value, nil
}

func invalidate(ctx context.Context, cache providers.CacheProvider, key string) {
	if err := cache.Delete(ctx, key); err != nil {
		observability.LoggerFromContext(ctx).Warn().Err(err).Str("key", key).Msg("failed to invalidate cache entry")
	}
}

// CachedServiceListingAdapter wraps a ServiceListingRepository with read-through caching
type CachedServiceListingAdapter struct {
	adapter repositories.ServiceListingRepository
	cache   providers.CacheProvider
	metrics *observability.Metrics
}

// NewCachedServiceListingAdapter creates a new cached service listing adapter
func NewCachedServiceListingAdapter(adapter repositories.ServiceListingRepository, cache providers.CacheProvider, metrics *observability.Metrics) repositories.ServiceListingRepository {
	return &CachedServiceListingAdapter{adapter: adapter, cache: cache, metrics: metrics}
}

func (a *CachedServiceListingAdapter) Create(ctx context.Context, service *entities.ServiceListing) error {
	return a.adapter.Create(ctx, service)
}

// GetByID retrieves a service with caching
func (a *CachedServiceListingAdapter) GetByID(ctx context.Context, id string) (*entities.ServiceListing, error) {
	return readThrough(ctx, a.cache, a.metrics, "service", providers.ServiceCacheKey(id), serviceByIDTTL, func() (*entities.ServiceListing, error) {
		return a.adapter.GetByID(ctx, id)
	})
}

func (a *CachedServiceListingAdapter) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	return a.adapter.ListIDs(ctx, limit, offset)
}

// UpdateRating writes through and drops the cached entry
func (a *CachedServiceListingAdapter) UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error {
	if err := a.adapter.UpdateRating(ctx, id, summary); err != nil {
		return err
	}
	invalidate(ctx, a.cache, providers.ServiceCacheKey(id))
	return nil
}

// CachedProviderAdapter wraps a ProviderRepository with read-through caching
type CachedProviderAdapter struct {
	adapter repositories.ProviderRepository
	cache   providers.CacheProvider
	metrics *observability.Metrics
}

// NewCachedProviderAdapter creates a new cached provider adapter
func NewCachedProviderAdapter(adapter repositories.ProviderRepository, cache providers.CacheProvider, metrics *observability.Metrics) repositories.ProviderRepository {
	return &CachedProviderAdapter{adapter: adapter, cache: cache, metrics: metrics}
}

func (a *CachedProviderAdapter) Create(ctx context.Context, provider *entities.Provider) error {
	return a.adapter.Create(ctx, provider)
}

// GetByID retrieves a provider with caching
func (a *CachedProviderAdapter) GetByID(ctx context.Context, id string) (*entities.Provider, error) {
	return readThrough(ctx, a.cache, a.metrics, "provider", providers.ProviderCacheKey(id), providerByIDTTL, func() (*entities.Provider, error) {
		return a.adapter.GetByID(ctx, id)
	})
}

func (a *CachedProviderAdapter) ListIDs(ctx context.Context, limit, offset int) ([]string, error) {
	return a.adapter.ListIDs(ctx, limit, offset)
}

// UpdateRating writes through and drops the cached entry
func (a *CachedProviderAdapter) UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error {
	if err := a.adapter.UpdateRating(ctx, id, summary); err != nil {
		return err
	}
	invalidate(ctx, a.cache, providers.ProviderCacheKey(id))
	return nil
}
