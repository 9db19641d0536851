package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates the caller could not be identified
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeForbidden indicates the caller is not a party to the resource
	ErrorTypeForbidden ErrorType = "FORBIDDEN"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// Booking lifecycle
	ErrorTypeSlotConflict      ErrorType = "SLOT_CONFLICT"
	ErrorTypePastDate          ErrorType = "PAST_DATE"
	ErrorTypeSelfBooking       ErrorType = "SELF_BOOKING"
	ErrorTypeInvalidTransition ErrorType = "INVALID_TRANSITION"
	ErrorTypeWindowExpired     ErrorType = "WINDOW_EXPIRED"

	// Reviews
	ErrorTypeAlreadyReviewed ErrorType = "ALREADY_REVIEWED"
	ErrorTypeNotCompleted    ErrorType = "NOT_COMPLETED"
	ErrorTypeNotEditable     ErrorType = "NOT_EDITABLE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	// Details carries structured context such as current/target status or a deadline.
	Details map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail attaches a context field and returns the same error
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal when err is not an AppError
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsType reports whether err is an AppError of the given type
func IsType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Type == t
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeForbidden,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewSlotConflictError reports that the provider already holds an occupying booking at the slot
func NewSlotConflictError(providerID, date, startTime string) *AppError {
	return (&AppError{
		Type:    ErrorTypeSlotConflict,
		Message: fmt.Sprintf("provider is already booked on %s at %s", date, startTime),
	}).
		WithDetail("provider_id", providerID).
		WithDetail("scheduled_date", date).
		WithDetail("start_time", startTime)
}

// NewPastDateError reports a booking whose start is not in the future
func NewPastDateError(scheduledAt time.Time) *AppError {
	return (&AppError{
		Type:    ErrorTypePastDate,
		Message: "booking must be scheduled in the future",
	}).WithDetail("scheduled_at", scheduledAt.Format(time.RFC3339))
}

// NewSelfBookingError reports a customer booking their own service
func NewSelfBookingError() *AppError {
	return &AppError{
		Type:    ErrorTypeSelfBooking,
		Message: "providers cannot book their own services",
	}
}

// NewInvalidTransitionError names both the current and the attempted status
func NewInvalidTransitionError(current, target, role string) *AppError {
	return (&AppError{
		Type:    ErrorTypeInvalidTransition,
		Message: fmt.Sprintf("cannot move booking from %s to %s as %s", current, target, role),
	}).
		WithDetail("current_status", current).
		WithDetail("target_status", target).
		WithDetail("role", role)
}

// NewWindowExpiredError reports a window policy rejection with its deadline
func NewWindowExpiredError(action string, deadline time.Time) *AppError {
	return (&AppError{
		Type:    ErrorTypeWindowExpired,
		Message: fmt.Sprintf("%s window closed at %s", action, deadline.Format(time.RFC3339)),
	}).
		WithDetail("action", action).
		WithDetail("deadline", deadline.Format(time.RFC3339))
}

// NewAlreadyReviewedError reports a second review for the same booking
func NewAlreadyReviewedError(bookingID string) *AppError {
	return (&AppError{
		Type:    ErrorTypeAlreadyReviewed,
		Message: "booking has already been reviewed",
	}).WithDetail("booking_id", bookingID)
}

// NewNotCompletedError reports a review attempt on an unfinished booking
func NewNotCompletedError(bookingID, current string) *AppError {
	return (&AppError{
		Type:    ErrorTypeNotCompleted,
		Message: "only completed bookings can be reviewed",
	}).
		WithDetail("booking_id", bookingID).
		WithDetail("current_status", current)
}

// NewNotEditableError reports an edit after the review edit window
func NewNotEditableError(reviewID string, editableUntil time.Time) *AppError {
	return (&AppError{
		Type:    ErrorTypeNotEditable,
		Message: "review can no longer be edited",
	}).
		WithDetail("review_id", reviewID).
		WithDetail("editable_until", editableUntil.Format(time.RFC3339))
}
