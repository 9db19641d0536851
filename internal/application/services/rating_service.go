package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/domain/repositories"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/servicemarket/pkg/errors"
)

// RecalculateBatchSize is the page size used when walking every service and provider
const RecalculateBatchSize = 200

// RecalculateSummary reports how many caches Recalculate-All overwrote
type RecalculateSummary struct {
	ServicesUpdated  int `json:"services_updated"`
	ProvidersUpdated int `json:"providers_updated"`
	Failures         int `json:"failures"`
}

// RatingService owns the cached rating aggregates of services and providers.
// recompute is the only code path that writes them.
type RatingService struct {
	reviews      repositories.ReviewRepository
	services     repositories.ServiceListingRepository
	providerRepo repositories.ProviderRepository
	eventBus     providers.EventBus
	metrics      *observability.Metrics
	workerCount  int
}

// NewRatingService creates a new rating service
func NewRatingService(
	reviews repositories.ReviewRepository,
	services repositories.ServiceListingRepository,
	providerRepo repositories.ProviderRepository,
	eventBus providers.EventBus,
	metrics *observability.Metrics,
	workers int,
) *RatingService {
	if workers <= 0 {
		workers = 1
	}
	return &RatingService{
		reviews:      reviews,
		services:     services,
		providerRepo: providerRepo,
		eventBus:     eventBus,
		metrics:      metrics,
		workerCount:  workers,
	}
}

// RecomputeService rebuilds one service's aggregate from its visible reviews
func (s *RatingService) RecomputeService(ctx context.Context, serviceID string) (entities.RatingSummary, error) {
	return s.recompute(ctx, entities.RatingTargetService, serviceID)
}

// RecomputeProvider rebuilds one provider's aggregate from its visible reviews
func (s *RatingService) RecomputeProvider(ctx context.Context, providerID string) (entities.RatingSummary, error) {
	return s.recompute(ctx, entities.RatingTargetProvider, providerID)
}

// RecomputeForReview rebuilds both aggregates a review contributes to
func (s *RatingService) RecomputeForReview(ctx context.Context, review *entities.Review) error {
	if _, err := s.RecomputeService(ctx, review.ServiceID); err != nil {
		return err
	}
	_, err := s.RecomputeProvider(ctx, review.ProviderID)
	return err
}

func (s *RatingService) recompute(ctx context.Context, target entities.RatingTarget, id string) (entities.RatingSummary, error) {
	started := time.Now()
	ctx, span := observability.StartSpan(ctx, "rating.recompute")
	defer span.End()

	sum, count, err := s.reviews.VisibleTotals(ctx, target, id)
	if err != nil {
		observability.RecordError(span, err)
		return entities.RatingSummary{}, passThrough(ctx, err, fmt.Sprintf("failed to total %s ratings", target))
	}
	summary := entities.ComputeRatingSummary(sum, count)

	switch target {
	case entities.RatingTargetService:
		err = s.services.UpdateRating(ctx, id, summary)
	case entities.RatingTargetProvider:
		err = s.providerRepo.UpdateRating(ctx, id, summary)
	default:
		err = apperrors.NewValidationError(fmt.Sprintf("unknown rating target %q", target))
	}
	if err != nil {
		observability.RecordError(span, err)
		return entities.RatingSummary{}, passThrough(ctx, err, fmt.Sprintf("failed to store %s rating", target))
	}

	observability.RecordRatingRecompute(ctx, s.metrics, string(target), time.Since(started))
	publishEvent(ctx, s.eventBus, providers.EventChannelRatingUpdates,
		entities.NewMarketplaceEvent(id, entities.EventTypeRatingRecomputed, map[string]interface{}{
			"target":  string(target),
			"average": summary.Average,
			"count":   summary.Count,
		}))

	return summary, nil
}

// GetServiceRating returns the cached aggregate, recomputing it when it is internally inconsistent
func (s *RatingService) GetServiceRating(ctx context.Context, serviceID string) (entities.RatingSummary, error) {
	service, err := s.services.GetByID(ctx, serviceID)
	if err != nil {
		return entities.RatingSummary{}, passThrough(ctx, err, "failed to load service")
	}
	if service.Rating.IsConsistent() {
		return service.Rating, nil
	}
	s.logCorrupt(ctx, entities.RatingTargetService, serviceID, service.Rating)
	return s.RecomputeService(ctx, serviceID)
}

// GetProviderRating returns the cached aggregate, recomputing it when it is internally inconsistent
func (s *RatingService) GetProviderRating(ctx context.Context, providerID string) (entities.RatingSummary, error) {
	provider, err := s.providerRepo.GetByID(ctx, providerID)
	if err != nil {
		return entities.RatingSummary{}, passThrough(ctx, err, "failed to load provider")
	}
	if provider.Rating.IsConsistent() {
		return provider.Rating, nil
	}
	s.logCorrupt(ctx, entities.RatingTargetProvider, providerID, provider.Rating)
	return s.RecomputeProvider(ctx, providerID)
}

func (s *RatingService) logCorrupt(ctx context.Context, target entities.RatingTarget, id string, cached entities.RatingSummary) {
	observability.LoggerFromContext(ctx).Warn().
		Str("target", string(target)).
		Str("target_id", id).
		Float64("cached_average", cached.Average).
		Int("cached_count", cached.Count).
		Msg("inconsistent rating cache, recomputing on read")
}

// RecalculateAll overwrites the aggregate of every service and every provider.
// Individual failures are logged and counted; listing failures abort.
func (s *RatingService) RecalculateAll(ctx context.Context) (*RecalculateSummary, error) {
	var servicesUpdated, providersUpdated, failures int64

	if err := s.recalculateTarget(ctx, entities.RatingTargetService, s.services.ListIDs, &servicesUpdated, &failures); err != nil {
		return nil, err
	}
	if err := s.recalculateTarget(ctx, entities.RatingTargetProvider, s.providerRepo.ListIDs, &providersUpdated, &failures); err != nil {
		return nil, err
	}

	summary := &RecalculateSummary{
		ServicesUpdated:  int(servicesUpdated),
		ProvidersUpdated: int(providersUpdated),
		Failures:         int(failures),
	}
	observability.LoggerFromContext(ctx).Info().
		Int("services_updated", summary.ServicesUpdated).
		Int("providers_updated", summary.ProvidersUpdated).
		Int("failures", summary.Failures).
		Msg("rating recalculation finished")
	return summary, nil
}

type listIDsFunc func(ctx context.Context, limit, offset int) ([]string, error)

func (s *RatingService) recalculateTarget(ctx context.Context, target entities.RatingTarget, list listIDsFunc, updated, failures *int64) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerCount)

	for offset := 0; ; offset += RecalculateBatchSize {
		ids, err := list(gctx, RecalculateBatchSize, offset)
		if err != nil {
			_ = g.Wait()
			return apperrors.NewInternalError(fmt.Sprintf("failed to list %s ids", target), err)
		}

		for _, id := range ids {
			id := id
			g.Go(func() error {
				if _, err := s.recompute(gctx, target, id); err != nil {
					atomic.AddInt64(failures, 1)
					observability.LoggerFromContext(gctx).Error().
						Err(err).
						Str("target", string(target)).
						Str("target_id", id).
						Msg("failed to recalculate rating")
					return nil
				}
				atomic.AddInt64(updated, 1)
				return nil
			})
		}

		if len(ids) < RecalculateBatchSize {
			break
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
