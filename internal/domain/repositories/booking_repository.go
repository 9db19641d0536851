package repositories

import (
	"context"
	"errors"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
)

var (
	// ErrBookingCodeTaken is returned by Create when the generated booking code already exists
	ErrBookingCodeTaken = errors.New("booking code already exists")

	// ErrStatusChanged is returned by UpdateStatus when the stored status no longer matches the expected one
	ErrStatusChanged = errors.New("booking status changed concurrently")
)

// BookingRepository defines the interface for booking data operations
type BookingRepository interface {
	// Create inserts a new booking. An occupied slot yields a SLOT_CONFLICT AppError.
	Create(ctx context.Context, booking *entities.Booking) error

	// GetByID retrieves a booking by ID
	GetByID(ctx context.Context, id string) (*entities.Booking, error)

	// ExistsAtSlot reports whether the provider holds an occupying booking at (date, start).
	// excludeID skips one booking, used when rescheduling.
	ExistsAtSlot(ctx context.Context, providerID, date, startTime, excludeID string) (bool, error)

	// UpdateStatus persists booking's status and side-effect blocks if the stored status still equals
	// expected, and appends event to the history in the same transaction. incrementCompleted adds one
	// to the provider's completed counter in that transaction; nothing is written if any step fails.
	UpdateStatus(ctx context.Context, booking *entities.Booking, expected entities.BookingStatus, event *entities.BookingStatusEvent, incrementCompleted bool) error

	// UpdateSchedule persists date, time, location and customer notes of a pending booking
	UpdateSchedule(ctx context.Context, booking *entities.Booking) error

	// ListByCustomer retrieves bookings made by a customer
	ListByCustomer(ctx context.Context, customerID string, filter BookingFilter) ([]*entities.Booking, error)

	// ListByProvider retrieves bookings held by a provider
	ListByProvider(ctx context.Context, providerID string, filter BookingFilter) ([]*entities.Booking, error)

	// ListHistory retrieves the status history of a booking, oldest first
	ListHistory(ctx context.Context, bookingID string) ([]*entities.BookingStatusEvent, error)

	// ListPendingReview retrieves the customer's completed bookings that have no review, most recently updated first
	ListPendingReview(ctx context.Context, customerID string) ([]*entities.Booking, error)
}

// BookingFilter defines filters for listing bookings
type BookingFilter struct {
	Status entities.BookingStatus
	From   string
	To     string
	Limit  int
	Offset int
}
