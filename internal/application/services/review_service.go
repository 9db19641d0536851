package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	"github.com/zatekoja/servicemarket/pkg/clock"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

// DefaultReviewEditWindow is how long after creation a review stays editable
const DefaultReviewEditWindow = 24 * time.Hour

// CreateReviewInput is a customer's review of a completed booking
type CreateReviewInput struct {
	BookingID      string
	CustomerID     string
	Rating         entities.ReviewRatings
	Comment        string
	Pros           []string
	Cons           []string
	WouldRecommend *bool
}

// EditReviewInput carries the fields a customer may change while the review is editable
type EditReviewInput struct {
	ReviewID       string
	CustomerID     string
	Rating         *entities.ReviewRatings
	Comment        *string
	Pros           *[]string
	Cons           *[]string
	WouldRecommend *bool
}

// ReviewService handles review submission, editing and moderation
type ReviewService struct {
	repo        repositories.ReviewRepository
	bookingRepo repositories.BookingRepository
	ratings     *RatingService
	clock       clock.Clock
	editWindow  time.Duration
	eventBus    providers.EventBus
}

// NewReviewService creates a new review service
func NewReviewService(
	repo repositories.ReviewRepository,
	bookingRepo repositories.BookingRepository,
	ratings *RatingService,
	clk clock.Clock,
	editWindow time.Duration,
	eventBus providers.EventBus,
) *ReviewService {
	if clk == nil {
		clk = clock.System{}
	}
	if editWindow <= 0 {
		editWindow = DefaultReviewEditWindow
	}
	return &ReviewService{
		repo:        repo,
		bookingRepo: bookingRepo,
		ratings:     ratings,
		clock:       clk,
		editWindow:  editWindow,
		eventBus:    eventBus,
	}
}

// CreateReview stores the single review of a completed booking and refreshes both aggregates
func (s *ReviewService) CreateReview(ctx context.Context, in CreateReviewInput) (*entities.Review, error) {
	booking, err := s.bookingRepo.GetByID(ctx, in.BookingID)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to load booking")
	}
	if booking.CustomerID != in.CustomerID {
		return nil, apperrors.NewForbiddenError("only the booking's customer can review it")
	}
	if booking.Status != entities.BookingStatusCompleted {
		return nil, apperrors.NewNotCompletedError(booking.ID, string(booking.Status))
	}
	if booking.IsReviewed {
		return nil, apperrors.NewAlreadyReviewedError(booking.ID)
	}

	now := s.clock.Now()
	review := &entities.Review{
		ID:             uuid.New().String(),
		BookingID:      booking.ID,
		CustomerID:     booking.CustomerID,
		ProviderID:     booking.ProviderID,
		ServiceID:      booking.ServiceID,
		Rating:         in.Rating,
		Comment:        strings.TrimSpace(in.Comment),
		Pros:           in.Pros,
		Cons:           in.Cons,
		WouldRecommend: true,
		IsVisible:      true,
		IsEditable:     true,
		EditableUntil:  now.Add(s.editWindow),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.WouldRecommend != nil {
		review.WouldRecommend = *in.WouldRecommend
	}
	if err := validateReview(review); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, review); err != nil {
		return nil, passThrough(ctx, err, "failed to save review")
	}

	if err := s.refreshAggregates(ctx, review); err != nil {
		return nil, err
	}
	publishEvent(ctx, s.eventBus, providers.EventChannelReviewUpdates,
		entities.NewMarketplaceEvent(review.ID, entities.EventTypeReviewCreated, reviewEventFields(review)))

	return review, nil
}

// EditReview updates a review inside its edit window. The window is not extended by edits.
func (s *ReviewService) EditReview(ctx context.Context, in EditReviewInput) (*entities.Review, error) {
	review, err := s.repo.GetByID(ctx, in.ReviewID)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to load review")
	}
	if review.CustomerID != in.CustomerID {
		return nil, apperrors.NewForbiddenError("only the author can edit a review")
	}
	now := s.clock.Now()
	if !review.CanEdit(now) {
		return nil, apperrors.NewNotEditableError(review.ID, review.EditableUntil)
	}

	if in.Rating != nil {
		review.Rating = *in.Rating
	}
	if in.Comment != nil {
		review.Comment = strings.TrimSpace(*in.Comment)
	}
	if in.Pros != nil {
		review.Pros = *in.Pros
	}
	if in.Cons != nil {
		review.Cons = *in.Cons
	}
	if in.WouldRecommend != nil {
		review.WouldRecommend = *in.WouldRecommend
	}
	if err := validateReview(review); err != nil {
		return nil, err
	}
	review.UpdatedAt = now

	if err := s.repo.Update(ctx, review); err != nil {
		return nil, passThrough(ctx, err, "failed to update review")
	}

	if err := s.refreshAggregates(ctx, review); err != nil {
		return nil, err
	}
	publishEvent(ctx, s.eventBus, providers.EventChannelReviewUpdates,
		entities.NewMarketplaceEvent(review.ID, entities.EventTypeReviewUpdated, reviewEventFields(review)))

	return review, nil
}

// SetVisibility hides or restores a review. Administrators only.
func (s *ReviewService) SetVisibility(ctx context.Context, reviewID string, actor entities.Actor, visible bool) (*entities.Review, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbiddenError("only administrators can moderate reviews")
	}
	review, err := s.repo.GetByID(ctx, reviewID)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to load review")
	}
	if review.IsVisible == visible {
		return review, nil
	}

	if err := s.repo.SetVisibility(ctx, reviewID, visible); err != nil {
		return nil, passThrough(ctx, err, "failed to update review visibility")
	}
	review.IsVisible = visible
	review.UpdatedAt = s.clock.Now()

	observability.LoggerFromContext(ctx).Info().
		Str("review_id", review.ID).
		Bool("visible", visible).
		Str("moderator_id", actor.ID).
		Msg("review visibility changed")

	if err := s.refreshAggregates(ctx, review); err != nil {
		return nil, err
	}
	fields := reviewEventFields(review)
	fields["is_visible"] = visible
	publishEvent(ctx, s.eventBus, providers.EventChannelReviewUpdates,
		entities.NewMarketplaceEvent(review.ID, entities.EventTypeReviewVisibilityChanged, fields))

	return review, nil
}

// RespondToReview records the provider's single public reply
func (s *ReviewService) RespondToReview(ctx context.Context, reviewID string, actor entities.Actor, text string) (*entities.Review, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.NewValidationError("response text is required")
	}
	if len(text) > entities.MaxResponseLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("response must be at most %d characters", entities.MaxResponseLength))
	}

	review, err := s.repo.GetByID(ctx, reviewID)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to load review")
	}
	if !actor.IsAdmin() && actor.ID != review.ProviderID {
		return nil, apperrors.NewForbiddenError("only the reviewed provider can respond")
	}
	if review.ProviderResponse != nil {
		return nil, apperrors.NewConflictError("review already has a response")
	}

	response := &entities.ProviderResponse{Text: text, RespondedAt: s.clock.Now()}
	if err := s.repo.SetProviderResponse(ctx, reviewID, response); err != nil {
		return nil, passThrough(ctx, err, "failed to save review response")
	}
	review.ProviderResponse = response
	return review, nil
}

// GetPendingReviews returns the customer's completed bookings still missing a review
func (s *ReviewService) GetPendingReviews(ctx context.Context, customerID string) ([]*entities.Booking, error) {
	bookings, err := s.bookingRepo.ListPendingReview(ctx, customerID)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to list bookings pending review")
	}
	return bookings, nil
}

// ListReviews returns visible reviews of a service or provider
func (s *ReviewService) ListReviews(ctx context.Context, target entities.RatingTarget, targetID string, filter repositories.ReviewFilter) ([]*entities.Review, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	reviews, err := s.repo.ListVisible(ctx, target, targetID, filter)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to list reviews")
	}
	return reviews, nil
}

// refreshAggregates recomputes both aggregates the review feeds. The review row is already
// durable when this fails; a retry sees the stored state and Recalculate-All repairs the cache.
func (s *ReviewService) refreshAggregates(ctx context.Context, review *entities.Review) error {
	if s.ratings == nil {
		return nil
	}
	if err := s.ratings.RecomputeForReview(ctx, review); err != nil {
		observability.LoggerFromContext(ctx).Error().
			Err(err).
			Str("review_id", review.ID).
			Str("service_id", review.ServiceID).
			Str("provider_id", review.ProviderID).
			Msg("failed to recompute ratings after review change")
		return apperrors.NewInternalError("failed to recompute ratings", err)
	}
	return nil
}

func validateReview(review *entities.Review) error {
	if err := review.Rating.Validate(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if err := review.ValidateContent(); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	return nil
}

func reviewEventFields(review *entities.Review) map[string]interface{} {
	return map[string]interface{}{
		"booking_id":  review.BookingID,
		"service_id":  review.ServiceID,
		"provider_id": review.ProviderID,
		"overall":     review.Rating.Overall,
	}
}
