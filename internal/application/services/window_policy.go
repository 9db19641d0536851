package services

import (
	"time"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/pkg/clock"
)

const (
	DefaultCancelWindow = 2 * time.Hour
	DefaultModifyWindow = 24 * time.Hour
)

// Eligibility is the advisory view of what a booking still allows
type Eligibility struct {
	Cancellable    bool      `json:"cancellable"`
	Modifiable     bool      `json:"modifiable"`
	CancelDeadline time.Time `json:"cancel_deadline"`
	ModifyDeadline time.Time `json:"modify_deadline"`
}

// WindowPolicy decides whether a booking can still be cancelled or modified.
// It is advisory: the state machine does not consult it.
type WindowPolicy struct {
	clock        clock.Clock
	loc          *time.Location
	cancelWindow time.Duration
	modifyWindow time.Duration
}

// NewWindowPolicy creates a window policy. Non-positive windows fall back to the defaults.
func NewWindowPolicy(clk clock.Clock, loc *time.Location, cancelWindow, modifyWindow time.Duration) *WindowPolicy {
	if clk == nil {
		clk = clock.System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if cancelWindow <= 0 {
		cancelWindow = DefaultCancelWindow
	}
	if modifyWindow <= 0 {
		modifyWindow = DefaultModifyWindow
	}
	return &WindowPolicy{
		clock:        clk,
		loc:          loc,
		cancelWindow: cancelWindow,
		modifyWindow: modifyWindow,
	}
}

// Now returns the policy's current time
func (p *WindowPolicy) Now() time.Time {
	return p.clock.Now()
}

// Location returns the zone scheduled dates are interpreted in
func (p *WindowPolicy) Location() *time.Location {
	return p.loc
}

// Cancellable reports whether booking is pending or confirmed and starts more than the
// cancel window from now. The deadline is returned either way.
func (p *WindowPolicy) Cancellable(booking *entities.Booking) (bool, time.Time, error) {
	start, err := booking.ScheduledStart(p.loc)
	if err != nil {
		return false, time.Time{}, err
	}
	deadline := start.Add(-p.cancelWindow)
	if !booking.Status.IsOccupying() {
		return false, deadline, nil
	}
	return start.Sub(p.clock.Now()) > p.cancelWindow, deadline, nil
}

// Modifiable reports whether booking is pending and starts more than the modify window from now
func (p *WindowPolicy) Modifiable(booking *entities.Booking) (bool, time.Time, error) {
	start, err := booking.ScheduledStart(p.loc)
	if err != nil {
		return false, time.Time{}, err
	}
	deadline := start.Add(-p.modifyWindow)
	if booking.Status != entities.BookingStatusPending {
		return false, deadline, nil
	}
	return start.Sub(p.clock.Now()) > p.modifyWindow, deadline, nil
}

// Evaluate computes both predicates
func (p *WindowPolicy) Evaluate(booking *entities.Booking) (*Eligibility, error) {
	cancellable, cancelDeadline, err := p.Cancellable(booking)
	if err != nil {
		return nil, err
	}
	modifiable, modifyDeadline, err := p.Modifiable(booking)
	if err != nil {
		return nil, err
	}
	return &Eligibility{
		Cancellable:    cancellable,
		Modifiable:     modifiable,
		CancelDeadline: cancelDeadline,
		ModifyDeadline: modifyDeadline,
	}, nil
}
