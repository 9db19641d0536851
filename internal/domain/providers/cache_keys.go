package providers

import (
	"fmt"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
)

// ServiceCacheKey is the cache key of a catalog service
func ServiceCacheKey(id string) string {
	return fmt.Sprintf("service:%s", id)
}

// ProviderCacheKey is the cache key of a provider
func ProviderCacheKey(id string) string {
	return fmt.Sprintf("provider:%s", id)
}

// RatingTargetCacheKey maps an aggregate owner to its cache key
func RatingTargetCacheKey(target entities.RatingTarget, id string) (string, bool) {
	switch target {
	case entities.RatingTargetService:
		return ServiceCacheKey(id), true
	case entities.RatingTargetProvider:
		return ProviderCacheKey(id), true
	}
	return "", false
}
