package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/servicemarket/internal/application/services"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
)

// RatingService defines the aggregate operations used by the handler
type RatingService interface {
	GetServiceRating(ctx context.Context, serviceID string) (entities.RatingSummary, error)
	GetProviderRating(ctx context.Context, providerID string) (entities.RatingSummary, error)
	RecalculateAll(ctx context.Context) (*services.RecalculateSummary, error)
}

// RatingHandler serves rating aggregates
type RatingHandler struct {
	service RatingService
}

// NewRatingHandler creates a new rating handler
func NewRatingHandler(service RatingService) *RatingHandler {
	return &RatingHandler{service: service}
}

type ratingResponse struct {
	Target  entities.RatingTarget `json:"target"`
	ID      string                `json:"id"`
	Average float64               `json:"average"`
	Count   int                   `json:"count"`
}

// GetServiceRating handles GET /api/services/{id}/rating
func (h *RatingHandler) GetServiceRating(w http.ResponseWriter, r *http.Request) {
	h.getRating(w, r, entities.RatingTargetService, h.service.GetServiceRating)
}

// GetProviderRating handles GET /api/providers/{id}/rating
func (h *RatingHandler) GetProviderRating(w http.ResponseWriter, r *http.Request) {
	h.getRating(w, r, entities.RatingTargetProvider, h.service.GetProviderRating)
}

func (h *RatingHandler) getRating(w http.ResponseWriter, r *http.Request, target entities.RatingTarget, get func(context.Context, string) (entities.RatingSummary, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	summary, err := get(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ratingResponse{
		Target:  target,
		ID:      id,
		Average: summary.Average,
		Count:   summary.Count,
	})
}

// RecalculateAll handles POST /api/admin/ratings/recalculate
func (h *RatingHandler) RecalculateAll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.RecalculateAll(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
