package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/servicemarket/internal/application/services"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
)

// BookingService defines the booking operations used by the handler
type BookingService interface {
	CreateBooking(ctx context.Context, in services.CreateBookingInput) (*entities.Booking, error)
	GetBooking(ctx context.Context, id string, actor entities.Actor) (*entities.Booking, error)
	ListBookings(ctx context.Context, actor entities.Actor, asProvider bool, filter repositories.BookingFilter) ([]*entities.Booking, error)
	GetHistory(ctx context.Context, id string, actor entities.Actor) ([]*entities.BookingStatusEvent, error)
	GetEligibility(ctx context.Context, id string, actor entities.Actor) (*services.Eligibility, error)
	TransitionBooking(ctx context.Context, in services.TransitionInput) (*entities.Booking, error)
	CancelBooking(ctx context.Context, id string, actor entities.Actor, reason string) (*entities.Booking, error)
	ModifyBooking(ctx context.Context, in services.ModifyBookingInput) (*entities.Booking, error)
}

// BookingHandler handles booking lifecycle requests
type BookingHandler struct {
	service BookingService
}

// NewBookingHandler creates a new booking handler
func NewBookingHandler(service BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

type createBookingRequest struct {
	ServiceID     string                 `json:"service_id"`
	ScheduledDate string                 `json:"scheduled_date"`
	StartTime     string                 `json:"start_time"`
	CustomerNotes string                 `json:"customer_notes"`
	Location      string                 `json:"location"`
	PaymentMethod entities.PaymentMethod `json:"payment_method"`
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), services.CreateBookingInput{
		CustomerID:    actor.ID,
		ServiceID:     req.ServiceID,
		ScheduledDate: req.ScheduledDate,
		StartTime:     req.StartTime,
		CustomerNotes: req.CustomerNotes,
		Location:      req.Location,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, booking)
}

// GetBooking handles GET /api/bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	booking, err := h.service.GetBooking(r.Context(), id, actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

// ListBookings handles GET /api/bookings?as=customer|provider&status=
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	asProvider := false
	switch q.Get("as") {
	case "", "customer":
	case "provider":
		asProvider = true
	default:
		respondWithError(w, http.StatusBadRequest, "as must be customer or provider")
		return
	}

	limit, offset, err := pagination(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	bookings, err := h.service.ListBookings(r.Context(), actor, asProvider, repositories.BookingFilter{
		Status: entities.BookingStatus(q.Get("status")),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetHistory handles GET /api/bookings/{id}/history
func (h *BookingHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	history, err := h.service.GetHistory(r.Context(), id, actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// GetEligibility handles GET /api/bookings/{id}/eligibility
func (h *BookingHandler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	eligibility, err := h.service.GetEligibility(r.Context(), id, actor)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, eligibility)
}

type transitionRequest struct {
	Status        entities.BookingStatus `json:"status"`
	Notes         string                 `json:"notes"`
	Reason        string                 `json:"reason"`
	ActualMinutes *int                   `json:"actual_minutes"`
}

// TransitionBooking handles POST /api/bookings/{id}/transitions
func (h *BookingHandler) TransitionBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	booking, err := h.service.TransitionBooking(r.Context(), services.TransitionInput{
		BookingID:     id,
		Actor:         actor,
		Target:        req.Status,
		Notes:         req.Notes,
		Reason:        req.Reason,
		ActualMinutes: req.ActualMinutes,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// CancelBooking handles POST /api/bookings/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	booking, err := h.service.CancelBooking(r.Context(), id, actor, req.Reason)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}

type modifyBookingRequest struct {
	ScheduledDate *string `json:"scheduled_date"`
	StartTime     *string `json:"start_time"`
	Location      *string `json:"location"`
	CustomerNotes *string `json:"customer_notes"`
}

// ModifyBooking handles PATCH /api/bookings/{id}
func (h *BookingHandler) ModifyBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req modifyBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	booking, err := h.service.ModifyBooking(r.Context(), services.ModifyBookingInput{
		BookingID:     id,
		Actor:         actor,
		ScheduledDate: req.ScheduledDate,
		StartTime:     req.StartTime,
		Location:      req.Location,
		CustomerNotes: req.CustomerNotes,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, booking)
}
