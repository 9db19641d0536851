package repositories

import (
	"context"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
)

// ReviewRepository defines the interface for review operations.
type ReviewRepository interface {
	// Create inserts the review and marks its booking reviewed in one transaction.
	// A second review for the same booking yields an ALREADY_REVIEWED AppError.
	Create(ctx context.Context, review *entities.Review) error

	GetByID(ctx context.Context, id string) (*entities.Review, error)

	GetByBookingID(ctx context.Context, bookingID string) (*entities.Review, error)

	// Update persists ratings, comment, pros, cons and recommendation
	Update(ctx context.Context, review *entities.Review) error

	SetVisibility(ctx context.Context, id string, visible bool) error

	SetProviderResponse(ctx context.Context, id string, response *entities.ProviderResponse) error

	// ListVisible retrieves visible reviews for a service or provider, newest first
	ListVisible(ctx context.Context, target entities.RatingTarget, targetID string, filter ReviewFilter) ([]*entities.Review, error)

	// VisibleTotals returns the sum and count of overall ratings over visible reviews
	VisibleTotals(ctx context.Context, target entities.RatingTarget, targetID string) (sum int64, count int64, err error)
}

// ReviewFilter defines pagination for listing reviews
type ReviewFilter struct {
	Limit  int
	Offset int
}
