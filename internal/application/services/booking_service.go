package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

const (
	maxBookingCodeAttempts = 3
	maxTransitionAttempts  = 3
)

// CreateBookingInput is a customer's reservation request
type CreateBookingInput struct {
	CustomerID    string
	ServiceID     string
	ScheduledDate string
	StartTime     string
	CustomerNotes string
	Location      string
	PaymentMethod entities.PaymentMethod
}

// TransitionInput asks to move a booking to Target on behalf of Actor
type TransitionInput struct {
	BookingID     string
	Actor         entities.Actor
	Target        entities.BookingStatus
	Notes         string
	Reason        string
	ActualMinutes *int
}

// ModifyBookingInput carries the fields a customer may change while the booking is modifiable
type ModifyBookingInput struct {
	BookingID     string
	Actor         entities.Actor
	ScheduledDate *string
	StartTime     *string
	Location      *string
	CustomerNotes *string
}

// BookingService handles the booking lifecycle: creation with slot checks, status
// transitions, window-gated cancellation and rescheduling.
type BookingService struct {
	repo        repositories.BookingRepository
	serviceRepo repositories.ServiceListingRepository
	policy      *WindowPolicy
	eventBus    providers.EventBus
	metrics     *observability.Metrics
}

// NewBookingService creates a new booking service
func NewBookingService(
	repo repositories.BookingRepository,
	serviceRepo repositories.ServiceListingRepository,
	policy *WindowPolicy,
	eventBus providers.EventBus,
	metrics *observability.Metrics,
) *BookingService {
	return &BookingService{
		repo:        repo,
		serviceRepo: serviceRepo,
		policy:      policy,
		eventBus:    eventBus,
		metrics:     metrics,
	}
}

// CreateBooking validates the slot and stores a pending booking
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*entities.Booking, error) {
	if err := validateCreateInput(&in); err != nil {
		return nil, err
	}

	service, err := s.serviceRepo.GetByID(ctx, in.ServiceID)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to load service")
	}
	if !service.IsBookable() {
		return nil, apperrors.NewValidationError("service is not available for booking")
	}
	if service.ProviderID == in.CustomerID {
		return nil, apperrors.NewSelfBookingError()
	}

	start, err := entities.ParseSlot(in.ScheduledDate, in.StartTime, s.policy.Location())
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	now := s.policy.Now()
	if !start.After(now) {
		return nil, apperrors.NewPastDateError(start)
	}

	end, err := entities.EndOfSlot(in.StartTime, service.DurationMinutes)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	taken, err := s.repo.ExistsAtSlot(ctx, service.ProviderID, in.ScheduledDate, in.StartTime, "")
	if err != nil {
		return nil, passThrough(ctx, err, "failed to check slot availability")
	}
	if taken {
		observability.RecordSlotConflict(ctx, s.metrics)
		return nil, apperrors.NewSlotConflictError(service.ProviderID, in.ScheduledDate, in.StartTime)
	}

	booking := &entities.Booking{
		ID:            uuid.New().String(),
		CustomerID:    in.CustomerID,
		ProviderID:    service.ProviderID,
		ServiceID:     service.ID,
		ScheduledDate: in.ScheduledDate,
		ScheduledTime: entities.TimeRange{Start: in.StartTime, End: end},
		Duration:      entities.BookingDuration{EstimatedMinutes: service.DurationMinutes},
		Pricing: entities.BookingPricing{
			AgreedAmount:  service.Price,
			Currency:      service.Currency,
			PaymentMethod: in.PaymentMethod,
		},
		Status:        entities.BookingStatusPending,
		Location:      in.Location,
		CustomerNotes: in.CustomerNotes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// The storage slot index is authoritative; the check above is optimistic.
	for attempt := 1; ; attempt++ {
		booking.BookingCode = entities.GenerateBookingCode(now)
		err = s.repo.Create(ctx, booking)
		if err == nil {
			break
		}
		if errors.Is(err, repositories.ErrBookingCodeTaken) && attempt < maxBookingCodeAttempts {
			continue
		}
		if apperrors.IsType(err, apperrors.ErrorTypeSlotConflict) {
			observability.RecordSlotConflict(ctx, s.metrics)
		}
		return nil, passThrough(ctx, err, "failed to save booking")
	}

	observability.LoggerFromContext(ctx).Info().
		Str("booking_id", booking.ID).
		Str("booking_code", booking.BookingCode).
		Str("provider_id", booking.ProviderID).
		Msg("booking created")

	publishEvent(ctx, s.eventBus, providers.EventChannelBookingUpdates,
		entities.NewMarketplaceEvent(booking.ID, entities.EventTypeBookingCreated, map[string]interface{}{
			"status":         string(booking.Status),
			"provider_id":    booking.ProviderID,
			"customer_id":    booking.CustomerID,
			"service_id":     booking.ServiceID,
			"scheduled_date": booking.ScheduledDate,
			"start_time":     booking.ScheduledTime.Start,
		}))

	return booking, nil
}

// GetBooking returns a booking visible to actor
func (s *BookingService) GetBooking(ctx context.Context, id string, actor entities.Actor) (*entities.Booking, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to load booking")
	}
	if err := authorizeParty(booking, actor); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListBookings lists the actor's bookings as customer or as provider
func (s *BookingService) ListBookings(ctx context.Context, actor entities.Actor, asProvider bool, filter repositories.BookingFilter) ([]*entities.Booking, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", filter.Status))
	}
	var (
		bookings []*entities.Booking
		err      error
	)
	if asProvider {
		bookings, err = s.repo.ListByProvider(ctx, actor.ID, filter)
	} else {
		bookings, err = s.repo.ListByCustomer(ctx, actor.ID, filter)
	}
	if err != nil {
		return nil, passThrough(ctx, err, "failed to list bookings")
	}
	return bookings, nil
}

// GetHistory returns the applied transitions of a booking
func (s *BookingService) GetHistory(ctx context.Context, id string, actor entities.Actor) ([]*entities.BookingStatusEvent, error) {
	if _, err := s.GetBooking(ctx, id, actor); err != nil {
		return nil, err
	}
	history, err := s.repo.ListHistory(ctx, id)
	if err != nil {
		return nil, passThrough(ctx, err, "failed to load booking history")
	}
	return history, nil
}

// CheckCancellable reports whether the booking can still be cancelled by its customer
func (s *BookingService) CheckCancellable(ctx context.Context, id string) (bool, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, passThrough(ctx, err, "failed to load booking")
	}
	ok, _, err := s.policy.Cancellable(booking)
	if err != nil {
		return false, apperrors.NewInternalError("stored booking has an invalid schedule", err)
	}
	return ok, nil
}

// CheckModifiable reports whether the booking can still be rescheduled
func (s *BookingService) CheckModifiable(ctx context.Context, id string) (bool, error) {
	booking, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, passThrough(ctx, err, "failed to load booking")
	}
	ok, _, err := s.policy.Modifiable(booking)
	if err != nil {
		return false, apperrors.NewInternalError("stored booking has an invalid schedule", err)
	}
	return ok, nil
}

// GetEligibility returns both window predicates with their deadlines
func (s *BookingService) GetEligibility(ctx context.Context, id string, actor entities.Actor) (*Eligibility, error) {
	booking, err := s.GetBooking(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	eligibility, err := s.policy.Evaluate(booking)
	if err != nil {
		return nil, apperrors.NewInternalError("stored booking has an invalid schedule", err)
	}
	return eligibility, nil
}

// TransitionBooking applies one status change according to the per-role transition table
func (s *BookingService) TransitionBooking(ctx context.Context, in TransitionInput) (*entities.Booking, error) {
	return s.transition(ctx, in, false)
}

// CancelBooking cancels on behalf of actor. Customers must be inside the cancellation window,
// which also grants them confirmed -> cancelled. Providers and administrators are not time-gated.
func (s *BookingService) CancelBooking(ctx context.Context, id string, actor entities.Actor, reason string) (*entities.Booking, error) {
	in := TransitionInput{
		BookingID: id,
		Actor:     actor,
		Target:    entities.BookingStatusCancelled,
		Reason:    reason,
	}
	if actor.Role != entities.RoleCustomer {
		return s.transition(ctx, in, false)
	}

	booking, err := s.GetBooking(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if booking.Status == entities.BookingStatusCancelled {
		return booking, nil
	}
	if !booking.Status.IsOccupying() {
		return nil, apperrors.NewInvalidTransitionError(string(booking.Status), string(in.Target), string(actor.Role))
	}
	ok, deadline, err := s.policy.Cancellable(booking)
	if err != nil {
		return nil, apperrors.NewInternalError("stored booking has an invalid schedule", err)
	}
	if !ok {
		return nil, apperrors.NewWindowExpiredError("cancellation", deadline)
	}
	return s.transition(ctx, in, true)
}

func (s *BookingService) transition(ctx context.Context, in TransitionInput, windowGranted bool) (*entities.Booking, error) {
	if !in.Target.IsValid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown status %q", in.Target))
	}
	if !in.Actor.Role.IsValid() {
		return nil, apperrors.NewForbiddenError("unknown actor role")
	}
	if len(in.Notes) > entities.MaxNotesLength || len(in.Reason) > entities.MaxNotesLength {
		return nil, apperrors.NewValidationError(fmt.Sprintf("notes must be at most %d characters", entities.MaxNotesLength))
	}
	if in.ActualMinutes != nil && *in.ActualMinutes <= 0 {
		return nil, apperrors.NewValidationError("actual duration must be positive")
	}

	booking, err := s.GetBooking(ctx, in.BookingID, in.Actor)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		current := booking.Status

		if current == in.Target {
			if in.Actor.IsAdmin() || (current.IsTerminal() && entities.CanReach(in.Actor.Role, current)) {
				return booking, nil
			}
			return nil, apperrors.NewInvalidTransitionError(string(current), string(in.Target), string(in.Actor.Role))
		}

		allowed := entities.CanTransition(in.Actor.Role, current, in.Target)
		if !allowed && windowGranted {
			allowed = entities.CanTransitionWithinWindow(in.Actor.Role, current, in.Target)
		}
		if !allowed {
			return nil, apperrors.NewInvalidTransitionError(string(current), string(in.Target), string(in.Actor.Role))
		}

		now := s.policy.Now()
		updated := *booking
		applyTransition(&updated, in, now)
		event := &entities.BookingStatusEvent{
			ID:         uuid.New().String(),
			BookingID:  booking.ID,
			FromStatus: current,
			ToStatus:   in.Target,
			ActorID:    in.Actor.ID,
			ActorRole:  in.Actor.Role,
			Notes:      firstNonEmpty(in.Notes, in.Reason),
			CreatedAt:  now,
		}

		completing := in.Target == entities.BookingStatusCompleted
		err = s.repo.UpdateStatus(ctx, &updated, current, event, completing)
		if errors.Is(err, repositories.ErrStatusChanged) && attempt < maxTransitionAttempts {
			if booking, err = s.repo.GetByID(ctx, in.BookingID); err != nil {
				return nil, passThrough(ctx, err, "failed to reload booking")
			}
			continue
		}
		if err != nil {
			return nil, passThrough(ctx, err, "failed to update booking status")
		}

		s.afterTransition(ctx, &updated, current, in.Actor)
		return &updated, nil
	}
}

func (s *BookingService) afterTransition(ctx context.Context, booking *entities.Booking, from entities.BookingStatus, actor entities.Actor) {
	observability.RecordBookingTransition(ctx, s.metrics, string(from), string(booking.Status), string(actor.Role))
	observability.LoggerFromContext(ctx).Info().
		Str("booking_id", booking.ID).
		Str("from", string(from)).
		Str("to", string(booking.Status)).
		Str("actor_role", string(actor.Role)).
		Msg("booking status changed")

	publishEvent(ctx, s.eventBus, providers.EventChannelBookingUpdates,
		entities.NewMarketplaceEvent(booking.ID, entities.EventTypeBookingStatusChanged, map[string]interface{}{
			"from_status": string(from),
			"status":      string(booking.Status),
			"actor_id":    actor.ID,
			"actor_role":  string(actor.Role),
			"provider_id": booking.ProviderID,
			"customer_id": booking.CustomerID,
		}))
}

// applyTransition sets the status and the blocks that exist only for that status
func applyTransition(b *entities.Booking, in TransitionInput, now time.Time) {
	b.Cancellation = nil
	b.Completion = nil

	switch in.Target {
	case entities.BookingStatusCancelled:
		reason := strings.TrimSpace(in.Reason)
		if reason == "" {
			reason = entities.DefaultCancellationReason(in.Actor.Role)
		}
		b.Cancellation = &entities.Cancellation{
			CancelledBy:     in.Actor.ID,
			CancelledByRole: in.Actor.Role,
			Reason:          reason,
			CancelledAt:     now,
		}
	case entities.BookingStatusCompleted:
		b.Completion = &entities.Completion{
			CompletedAt: now,
			CompletedBy: in.Actor.ID,
		}
		if in.ActualMinutes != nil {
			actual := *in.ActualMinutes
			b.Duration.ActualMinutes = &actual
		}
	}

	if in.Notes != "" && in.Actor.Role == entities.RoleProvider {
		b.ProviderNotes = in.Notes
	}
	b.Status = in.Target
	b.UpdatedAt = now
}

// ModifyBooking reschedules or edits a pending booking while it is modifiable
func (s *BookingService) ModifyBooking(ctx context.Context, in ModifyBookingInput) (*entities.Booking, error) {
	booking, err := s.GetBooking(ctx, in.BookingID, in.Actor)
	if err != nil {
		return nil, err
	}
	if !in.Actor.IsAdmin() && in.Actor.ID != booking.CustomerID {
		return nil, apperrors.NewForbiddenError("only the customer can modify a booking")
	}

	ok, deadline, err := s.policy.Modifiable(booking)
	if err != nil {
		return nil, apperrors.NewInternalError("stored booking has an invalid schedule", err)
	}
	if !ok {
		return nil, apperrors.NewWindowExpiredError("modification", deadline)
	}

	updated := *booking
	if in.Location != nil {
		if len(*in.Location) > entities.MaxLocationLength {
			return nil, apperrors.NewValidationError(fmt.Sprintf("location must be at most %d characters", entities.MaxLocationLength))
		}
		updated.Location = *in.Location
	}
	if in.CustomerNotes != nil {
		if len(*in.CustomerNotes) > entities.MaxNotesLength {
			return nil, apperrors.NewValidationError(fmt.Sprintf("notes must be at most %d characters", entities.MaxNotesLength))
		}
		updated.CustomerNotes = *in.CustomerNotes
	}

	rescheduled := false
	if in.ScheduledDate != nil && *in.ScheduledDate != booking.ScheduledDate {
		updated.ScheduledDate = *in.ScheduledDate
		rescheduled = true
	}
	if in.StartTime != nil && *in.StartTime != booking.ScheduledTime.Start {
		updated.ScheduledTime.Start = *in.StartTime
		rescheduled = true
	}

	if rescheduled {
		if err := entities.ValidateDate(updated.ScheduledDate); err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		if err := entities.ValidateClock(updated.ScheduledTime.Start); err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		start, err := updated.ScheduledStart(s.policy.Location())
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		if !start.After(s.policy.Now()) {
			return nil, apperrors.NewPastDateError(start)
		}
		end, err := entities.EndOfSlot(updated.ScheduledTime.Start, updated.Duration.EstimatedMinutes)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		updated.ScheduledTime.End = end

		taken, err := s.repo.ExistsAtSlot(ctx, updated.ProviderID, updated.ScheduledDate, updated.ScheduledTime.Start, updated.ID)
		if err != nil {
			return nil, passThrough(ctx, err, "failed to check slot availability")
		}
		if taken {
			observability.RecordSlotConflict(ctx, s.metrics)
			return nil, apperrors.NewSlotConflictError(updated.ProviderID, updated.ScheduledDate, updated.ScheduledTime.Start)
		}
	}

	updated.UpdatedAt = s.policy.Now()
	if err := s.repo.UpdateSchedule(ctx, &updated); err != nil {
		return nil, passThrough(ctx, err, "failed to update booking")
	}

	publishEvent(ctx, s.eventBus, providers.EventChannelBookingUpdates,
		entities.NewMarketplaceEvent(updated.ID, entities.EventTypeBookingModified, map[string]interface{}{
			"provider_id":    updated.ProviderID,
			"scheduled_date": updated.ScheduledDate,
			"start_time":     updated.ScheduledTime.Start,
			"rescheduled":    rescheduled,
		}))

	return &updated, nil
}

func validateCreateInput(in *CreateBookingInput) error {
	if in.CustomerID == "" {
		return apperrors.NewUnauthorizedError("customer identity is required")
	}
	if in.ServiceID == "" {
		return apperrors.NewValidationError("service_id is required")
	}
	if err := entities.ValidateDate(in.ScheduledDate); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if err := entities.ValidateClock(in.StartTime); err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if len(in.CustomerNotes) > entities.MaxNotesLength {
		return apperrors.NewValidationError(fmt.Sprintf("notes must be at most %d characters", entities.MaxNotesLength))
	}
	if len(in.Location) > entities.MaxLocationLength {
		return apperrors.NewValidationError(fmt.Sprintf("location must be at most %d characters", entities.MaxLocationLength))
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = entities.PaymentMethodCash
	}
	if !in.PaymentMethod.IsValid() {
		return apperrors.NewValidationError(fmt.Sprintf("unsupported payment method %q", in.PaymentMethod))
	}
	return nil
}

// authorizeParty allows administrators and the booking's own customer or provider
func authorizeParty(booking *entities.Booking, actor entities.Actor) error {
	switch actor.Role {
	case entities.RoleAdministrator:
		return nil
	case entities.RoleCustomer:
		if actor.ID == booking.CustomerID {
			return nil
		}
	case entities.RoleProvider:
		if actor.ID == booking.ProviderID {
			return nil
		}
	}
	return apperrors.NewForbiddenError("not a party to this booking")
}

// passThrough returns typed AppErrors unchanged and wraps anything else as an internal error
func passThrough(ctx context.Context, err error, message string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Type != apperrors.ErrorTypeInternal {
		return err
	}
	observability.LoggerFromContext(ctx).Error().Err(err).Msg(message)
	if appErr != nil {
		return err
	}
	return apperrors.NewInternalError(message, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
