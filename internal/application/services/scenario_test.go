package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/servicemarket/internal/application/services"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

func TestBookingLifecycle_EndToEnd(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, may20)

	booking, err := h.bookings.CreateBooking(ctx, services.CreateBookingInput{
		CustomerID: testCustomerID, ServiceID: testServiceID, ScheduledDate: "2025-06-01", StartTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, entities.BookingStatusPending, booking.Status)

	_, err = h.bookings.CreateBooking(ctx, services.CreateBookingInput{
		CustomerID: otherCustomer, ServiceID: testServiceID, ScheduledDate: "2025-06-01", StartTime: "10:00",
	})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeSlotConflict))

	assert.Equal(t, entities.BookingStatusConfirmed, h.move(t, booking.ID, providerActor, entities.BookingStatusConfirmed).Status)
	assert.Equal(t, entities.BookingStatusInProgress, h.move(t, booking.ID, providerActor, entities.BookingStatusInProgress).Status)
	assert.Equal(t, entities.BookingStatusCompleted, h.move(t, booking.ID, providerActor, entities.BookingStatusCompleted).Status)

	pending, err := h.reviews.GetPendingReviews(ctx, testCustomerID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = h.reviews.CreateReview(ctx, services.CreateReviewInput{
		BookingID: booking.ID, CustomerID: testCustomerID, Rating: entities.ReviewRatings{Overall: 4},
	})
	require.NoError(t, err)

	serviceRating, err := h.ratings.GetServiceRating(ctx, testServiceID)
	require.NoError(t, err)
	assert.Equal(t, entities.RatingSummary{Average: 4.0, Count: 1}, serviceRating)

	providerRating, err := h.ratings.GetProviderRating(ctx, testProviderID)
	require.NoError(t, err)
	assert.Equal(t, entities.RatingSummary{Average: 4.0, Count: 1}, providerRating)
	assert.Equal(t, 1, h.store.provider(testProviderID).CompletedServices)

	_, err = h.reviews.CreateReview(ctx, services.CreateReviewInput{
		BookingID: booking.ID, CustomerID: testCustomerID, Rating: entities.ReviewRatings{Overall: 2},
	})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeAlreadyReviewed))

	pending, err = h.reviews.GetPendingReviews(ctx, testCustomerID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
