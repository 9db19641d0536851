package entities

import (
	"fmt"
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
	BookingStatusDeclined   BookingStatus = "declined"
	BookingStatusNoShow     BookingStatus = "no_show"
)

// OccupyingStatuses hold a provider's slot
var OccupyingStatuses = []BookingStatus{BookingStatusPending, BookingStatusConfirmed}

// IsValid reports whether s is a known status
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusInProgress,
		BookingStatusCompleted, BookingStatusCancelled, BookingStatusDeclined, BookingStatusNoShow:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed for non-admin actors
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusDeclined, BookingStatusNoShow:
		return true
	}
	return false
}

// IsOccupying reports whether a booking in this status blocks its slot
func (s BookingStatus) IsOccupying() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// PaymentMethod is how the customer intends to pay
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodOnline       PaymentMethod = "online"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// IsValid reports whether m is a supported payment method
func (m PaymentMethod) IsValid() bool {
	return m == PaymentMethodCash || m == PaymentMethodOnline || m == PaymentMethodBankTransfer
}

const (
	// DateLayout is the layout of Booking.ScheduledDate
	DateLayout = "2006-01-02"
	// ClockLayout is the layout of TimeRange start and end
	ClockLayout = "15:04"

	MaxNotesLength    = 500
	MaxLocationLength = 255
)

// TimeRange is a same-day HH:MM interval
type TimeRange struct {
	Start string `json:"start" db:"start_time"`
	End   string `json:"end" db:"end_time"`
}

// BookingDuration holds estimated and actual minutes
type BookingDuration struct {
	EstimatedMinutes int  `json:"estimated" db:"estimated_minutes"`
	ActualMinutes    *int `json:"actual,omitempty" db:"actual_minutes"`
}

// BookingPricing records the commercial terms agreed at booking time
type BookingPricing struct {
	AgreedAmount  float64       `json:"agreed_amount" db:"agreed_amount"`
	Currency      string        `json:"currency" db:"currency"`
	PaymentMethod PaymentMethod `json:"payment_method" db:"payment_method"`
}

// Cancellation is present only on cancelled bookings
type Cancellation struct {
	CancelledBy     string    `json:"cancelled_by" db:"cancelled_by"`
	CancelledByRole ActorRole `json:"cancelled_by_role" db:"cancelled_by_role"`
	Reason          string    `json:"reason" db:"cancellation_reason"`
	CancelledAt     time.Time `json:"cancelled_at" db:"cancelled_at"`
}

// Completion is present only on completed bookings
type Completion struct {
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
	CompletedBy string    `json:"completed_by" db:"completed_by"`
}

// Booking represents a customer's reservation of a provider's service
type Booking struct {
	ID            string          `json:"id" db:"id"`
	BookingCode   string          `json:"booking_code" db:"booking_code"`
	CustomerID    string          `json:"customer_id" db:"customer_id"`
	ProviderID    string          `json:"provider_id" db:"provider_id"`
	ServiceID     string          `json:"service_id" db:"service_id"`
	ScheduledDate string          `json:"scheduled_date" db:"scheduled_date"`
	ScheduledTime TimeRange       `json:"scheduled_time"`
	Duration      BookingDuration `json:"duration"`
	Pricing       BookingPricing  `json:"pricing"`
	Status        BookingStatus   `json:"status" db:"status"`
	Location      string          `json:"location,omitempty" db:"location"`
	CustomerNotes string          `json:"customer_notes,omitempty" db:"customer_notes"`
	ProviderNotes string          `json:"provider_notes,omitempty" db:"provider_notes"`
	Cancellation  *Cancellation   `json:"cancellation,omitempty"`
	Completion    *Completion     `json:"completion,omitempty"`
	IsReviewed    bool            `json:"is_reviewed" db:"is_reviewed"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// ScheduledStart resolves the scheduled date and start time in loc
func (b *Booking) ScheduledStart(loc *time.Location) (time.Time, error) {
	return ParseSlot(b.ScheduledDate, b.ScheduledTime.Start, loc)
}

// IsPartyTo reports whether actorID is the booking's customer or provider
func (b *Booking) IsPartyTo(actorID string) bool {
	return actorID != "" && (actorID == b.CustomerID || actorID == b.ProviderID)
}

// BookingStatusEvent is one applied transition in a booking's history
type BookingStatusEvent struct {
	ID         string        `json:"id" db:"id"`
	BookingID  string        `json:"booking_id" db:"booking_id"`
	FromStatus BookingStatus `json:"from_status" db:"from_status"`
	ToStatus   BookingStatus `json:"to_status" db:"to_status"`
	ActorID    string        `json:"actor_id" db:"actor_id"`
	ActorRole  ActorRole     `json:"actor_role" db:"actor_role"`
	Notes      string        `json:"notes,omitempty" db:"notes"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// ParseSlot combines a YYYY-MM-DD date and an HH:MM clock time in loc
func ParseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %q %q: %w", date, clock, err)
	}
	return t, nil
}

// ValidateDate checks the YYYY-MM-DD layout
func ValidateDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("scheduled_date must be YYYY-MM-DD")
	}
	return nil
}

// ValidateClock checks the 24h HH:MM layout
func ValidateClock(clock string) error {
	if len(clock) != len(ClockLayout) {
		return fmt.Errorf("time must be HH:MM")
	}
	if _, err := time.Parse(ClockLayout, clock); err != nil {
		return fmt.Errorf("time must be HH:MM")
	}
	return nil
}

// EndOfSlot returns start plus minutes as HH:MM; the slot must end on the same day
func EndOfSlot(start string, minutes int) (string, error) {
	t, err := time.Parse(ClockLayout, start)
	if err != nil {
		return "", fmt.Errorf("time must be HH:MM")
	}
	if minutes <= 0 {
		return "", fmt.Errorf("duration must be positive")
	}
	end := t.Add(time.Duration(minutes) * time.Minute)
	if end.Day() != t.Day() {
		return "", fmt.Errorf("booking must end on the same day")
	}
	return end.Format(ClockLayout), nil
}

// GenerateBookingCode returns a human-readable code like BK-250601-7F3A9C
func GenerateBookingCode(now time.Time) string {
	return "BK-" + now.Format("060102") + "-" + strings.ToUpper(randomString(6))
}
