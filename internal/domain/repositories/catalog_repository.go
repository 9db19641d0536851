package repositories

import (
	"context"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
)

// ServiceListingRepository defines catalog lookups and the rating cache write for services
type ServiceListingRepository interface {
	Create(ctx context.Context, service *entities.ServiceListing) error

	GetByID(ctx context.Context, id string) (*entities.ServiceListing, error)

	// ListIDs pages through every service id in a stable order
	ListIDs(ctx context.Context, limit, offset int) ([]string, error)

	// UpdateRating overwrites the cached aggregate
	UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error
}

// ProviderRepository defines provider lookups and the rating cache write
type ProviderRepository interface {
	Create(ctx context.Context, provider *entities.Provider) error

	GetByID(ctx context.Context, id string) (*entities.Provider, error)

	// ListIDs pages through every provider id in a stable order
	ListIDs(ctx context.Context, limit, offset int) ([]string, error)

	// UpdateRating overwrites the cached aggregate
	UpdateRating(ctx context.Context, id string, summary entities.RatingSummary) error
}
