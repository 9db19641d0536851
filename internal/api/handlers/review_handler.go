package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/servicemarket/internal/application/services"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
)

// ReviewService defines the review operations used by the handler
type ReviewService interface {
	CreateReview(ctx context.Context, in services.CreateReviewInput) (*entities.Review, error)
	EditReview(ctx context.Context, in services.EditReviewInput) (*entities.Review, error)
	SetVisibility(ctx context.Context, reviewID string, actor entities.Actor, visible bool) (*entities.Review, error)
	RespondToReview(ctx context.Context, reviewID string, actor entities.Actor, text string) (*entities.Review, error)
	GetPendingReviews(ctx context.Context, customerID string) ([]*entities.Booking, error)
	ListReviews(ctx context.Context, target entities.RatingTarget, targetID string, filter repositories.ReviewFilter) ([]*entities.Review, error)
}

// ReviewHandler handles review requests
type ReviewHandler struct {
	service ReviewService
}

// NewReviewHandler creates a new review handler
func NewReviewHandler(service ReviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

type createReviewRequest struct {
	Rating         entities.ReviewRatings `json:"rating"`
	Comment        string                 `json:"comment"`
	Pros           []string               `json:"pros"`
	Cons           []string               `json:"cons"`
	WouldRecommend *bool                  `json:"would_recommend"`
}

// CreateReview handles POST /api/bookings/{id}/review
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.service.CreateReview(r.Context(), services.CreateReviewInput{
		BookingID:      bookingID,
		CustomerID:     actor.ID,
		Rating:         req.Rating,
		Comment:        req.Comment,
		Pros:           req.Pros,
		Cons:           req.Cons,
		WouldRecommend: req.WouldRecommend,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, review)
}

type editReviewRequest struct {
	Rating         *entities.ReviewRatings `json:"rating"`
	Comment        *string                 `json:"comment"`
	Pros           *[]string               `json:"pros"`
	Cons           *[]string               `json:"cons"`
	WouldRecommend *bool                   `json:"would_recommend"`
}

// EditReview handles PATCH /api/reviews/{id}
func (h *ReviewHandler) EditReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req editReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.service.EditReview(r.Context(), services.EditReviewInput{
		ReviewID:       id,
		CustomerID:     actor.ID,
		Rating:         req.Rating,
		Comment:        req.Comment,
		Pros:           req.Pros,
		Cons:           req.Cons,
		WouldRecommend: req.WouldRecommend,
	})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, review)
}

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

// SetVisibility handles PATCH /api/admin/reviews/{id}/visibility
func (h *ReviewHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req visibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Visible == nil {
		respondWithError(w, http.StatusBadRequest, "visible is required")
		return
	}

	review, err := h.service.SetVisibility(r.Context(), id, actor, *req.Visible)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, review)
}

type responseRequest struct {
	Text string `json:"text"`
}

// RespondToReview handles POST /api/reviews/{id}/response
func (h *ReviewHandler) RespondToReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req responseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	review, err := h.service.RespondToReview(r.Context(), id, actor, req.Text)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, review)
}

// GetPendingReviews handles GET /api/reviews/pending
func (h *ReviewHandler) GetPendingReviews(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.GetPendingReviews(r.Context(), actor.ID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// ListServiceReviews handles GET /api/services/{id}/reviews
func (h *ReviewHandler) ListServiceReviews(w http.ResponseWriter, r *http.Request) {
	h.listReviews(w, r, entities.RatingTargetService)
}

// ListProviderReviews handles GET /api/providers/{id}/reviews
func (h *ReviewHandler) ListProviderReviews(w http.ResponseWriter, r *http.Request) {
	h.listReviews(w, r, entities.RatingTargetProvider)
}

func (h *ReviewHandler) listReviews(w http.ResponseWriter, r *http.Request, target entities.RatingTarget) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviews, err := h.service.ListReviews(r.Context(), target, id, repositories.ReviewFilter{Limit: limit, Offset: offset})
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"reviews": reviews,
		"count":   len(reviews),
		"limit":   limit,
		"offset":  offset,
	})
}
