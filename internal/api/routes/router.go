package routes

import (
	"net/http"

	"github.com/zatekoja/servicemarket/internal/api/handlers"
	"github.com/zatekoja/servicemarket/internal/api/middleware"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	"github.com/zatekoja/servicemarket/pkg/config"
)

const reviewListingTTLSeconds = 30

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	bookingHandler *handlers.BookingHandler
	reviewHandler  *handlers.ReviewHandler
	ratingHandler  *handlers.RatingHandler

	resolver      providers.IdentityResolver
	rateLimiter   *middleware.RateLimiter
	responseCache *middleware.ResponseCache
	cors          config.CORSConfig
	metrics       *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	bookingHandler *handlers.BookingHandler,
	reviewHandler *handlers.ReviewHandler,
	ratingHandler *handlers.RatingHandler,
	resolver providers.IdentityResolver,
	rateLimiter *middleware.RateLimiter,
	responseCache *middleware.ResponseCache,
	cors config.CORSConfig,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		bookingHandler: bookingHandler,
		reviewHandler:  reviewHandler,
		ratingHandler:  ratingHandler,
		resolver:       resolver,
		rateLimiter:    rateLimiter,
		responseCache:  responseCache,
		cors:           cors,
		metrics:        metrics,
	}
}

// protected authenticates the caller, applies the write rate limit and, when roles are given, checks the role
func (r *Router) protected(h http.HandlerFunc, roles ...entities.ActorRole) http.Handler {
	var handler http.Handler = h
	if len(roles) > 0 {
		handler = middleware.RequireRole(roles...)(handler)
	}
	if r.rateLimiter != nil {
		handler = r.rateLimiter.Middleware(handler)
	}
	return middleware.Auth(r.resolver)(handler)
}

func (r *Router) cached(h http.HandlerFunc) http.HandlerFunc {
	if r.responseCache == nil {
		return h
	}
	return r.responseCache.For(reviewListingTTLSeconds, h).ServeHTTP
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Bookings
	r.mux.Handle("POST /api/bookings", r.protected(r.bookingHandler.CreateBooking, entities.RoleCustomer))
	r.mux.Handle("GET /api/bookings", r.protected(r.bookingHandler.ListBookings))
	r.mux.Handle("GET /api/bookings/{id}", r.protected(r.bookingHandler.GetBooking))
	r.mux.Handle("PATCH /api/bookings/{id}", r.protected(r.bookingHandler.ModifyBooking))
	r.mux.Handle("GET /api/bookings/{id}/history", r.protected(r.bookingHandler.GetHistory))
	r.mux.Handle("GET /api/bookings/{id}/eligibility", r.protected(r.bookingHandler.GetEligibility))
	r.mux.Handle("POST /api/bookings/{id}/transitions", r.protected(r.bookingHandler.TransitionBooking))
	r.mux.Handle("POST /api/bookings/{id}/cancel", r.protected(r.bookingHandler.CancelBooking))

	// Reviews
	r.mux.Handle("POST /api/bookings/{id}/review", r.protected(r.reviewHandler.CreateReview, entities.RoleCustomer))
	r.mux.Handle("GET /api/reviews/pending", r.protected(r.reviewHandler.GetPendingReviews, entities.RoleCustomer))
	r.mux.Handle("PATCH /api/reviews/{id}", r.protected(r.reviewHandler.EditReview, entities.RoleCustomer))
	r.mux.Handle("POST /api/reviews/{id}/response", r.protected(r.reviewHandler.RespondToReview, entities.RoleProvider))
	r.mux.Handle("GET /api/services/{id}/reviews", r.protected(r.cached(r.reviewHandler.ListServiceReviews)))
	r.mux.Handle("GET /api/providers/{id}/reviews", r.protected(r.cached(r.reviewHandler.ListProviderReviews)))

	// Ratings
	r.mux.Handle("GET /api/services/{id}/rating", r.protected(r.ratingHandler.GetServiceRating))
	r.mux.Handle("GET /api/providers/{id}/rating", r.protected(r.ratingHandler.GetProviderRating))

	// Administration
	r.mux.Handle("PATCH /api/admin/reviews/{id}/visibility", r.protected(r.reviewHandler.SetVisibility, entities.RoleAdministrator))
	r.mux.Handle("POST /api/admin/ratings/recalculate", r.protected(r.ratingHandler.RecalculateAll, entities.RoleAdministrator))

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)

	// CORS wraps everything so headers are set even on cache HITs
	handler = middleware.CORS(r.cors)(handler)

	return handler
}
