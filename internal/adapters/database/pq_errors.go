package database

import (
	"errors"

	"github.com/lib/pq"
)

const (
	uniqueViolation = pq.ErrorCode("23505")

	constraintActiveSlot    = "bookings_active_slot_uniq"
	constraintBookingCode   = "bookings_booking_code_key"
	constraintReviewBooking = "reviews_booking_id_key"
)

// violatedUniqueConstraint returns the constraint name when err is a unique violation
func violatedUniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
