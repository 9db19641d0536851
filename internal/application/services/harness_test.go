package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zatekoja/servicemarket/internal/application/services"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/pkg/clock"
)

const (
	testProviderID = "prov-1"
	testServiceID  = "svc-1"
	testCustomerID = "cust-1"
	otherCustomer  = "cust-2"
)

var (
	customer      = entities.Actor{ID: testCustomerID, Role: entities.RoleCustomer}
	providerActor = entities.Actor{ID: testProviderID, Role: entities.RoleProvider}
	admin         = entities.Actor{ID: "admin-1", Role: entities.RoleAdministrator}
)

type harness struct {
	store    *memoryStore
	clock    *clock.Fixed
	bus      *MockEventBus
	bookings *services.BookingService
	reviews  *services.ReviewService
	ratings  *services.RatingService
}

// newHarness wires the services over in-memory storage with the clock fixed at now (UTC)
func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()

	store := newMemoryStore()
	store.addProvider(&entities.Provider{ID: testProviderID, DisplayName: "Sparkle Cleaning"})
	store.addProvider(&entities.Provider{ID: "prov-2", DisplayName: "Other Provider"})
	store.addService(&entities.ServiceListing{
		ID:              testServiceID,
		ProviderID:      testProviderID,
		Title:           "Deep clean",
		DurationMinutes: 60,
		Price:           50,
		Currency:        "USD",
		IsActive:        true,
		IsApproved:      true,
	})

	clk := &clock.Fixed{At: now}
	bus := NewMockEventBus()
	bookingRepo := memoryBookingRepo{store}
	reviewRepo := memoryReviewRepo{store}
	serviceRepo := memoryServiceRepo{store}
	providerRepo := memoryProviderRepo{store}

	policy := services.NewWindowPolicy(clk, time.UTC, 2*time.Hour, 24*time.Hour)
	ratings := services.NewRatingService(reviewRepo, serviceRepo, providerRepo, bus, nil, 2)

	return &harness{
		store:    store,
		clock:    clk,
		bus:      bus,
		bookings: services.NewBookingService(bookingRepo, serviceRepo, policy, bus, nil),
		reviews:  services.NewReviewService(reviewRepo, bookingRepo, ratings, clk, 24*time.Hour, bus),
		ratings:  ratings,
	}
}

func (h *harness) book(t *testing.T, customerID, date, start string) *entities.Booking {
	t.Helper()
	b, err := h.bookings.CreateBooking(context.Background(), services.CreateBookingInput{
		CustomerID:    customerID,
		ServiceID:     testServiceID,
		ScheduledDate: date,
		StartTime:     start,
	})
	require.NoError(t, err)
	return b
}

func (h *harness) move(t *testing.T, bookingID string, actor entities.Actor, target entities.BookingStatus) *entities.Booking {
	t.Helper()
	b, err := h.bookings.TransitionBooking(context.Background(), services.TransitionInput{
		BookingID: bookingID,
		Actor:     actor,
		Target:    target,
	})
	require.NoError(t, err)
	return b
}

// complete walks a pending booking through confirmed and in_progress to completed
func (h *harness) complete(t *testing.T, bookingID string) *entities.Booking {
	t.Helper()
	h.move(t, bookingID, providerActor, entities.BookingStatusConfirmed)
	h.move(t, bookingID, providerActor, entities.BookingStatusInProgress)
	return h.move(t, bookingID, providerActor, entities.BookingStatusCompleted)
}
