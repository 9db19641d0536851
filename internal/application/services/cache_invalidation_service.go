package services

import (
	"context"
	"fmt"
	"time"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
)

// CacheInvalidationService drops cached catalog entries when a rating is recomputed or a
// completed booking bumps a provider's counter, in this instance or another one.
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins listening for rating and booking events and invalidating cache
func (s *CacheInvalidationService) Start() error {
	ratingChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelRatingUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to rating updates: %w", err)
	}
	bookingChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelBookingUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to booking updates: %w", err)
	}

	go s.processEvents(ratingChan)
	go s.processEvents(bookingChan)
	observability.GetLogger().Info().Msg("cache invalidation service started")
	return nil
}

// Stop stops the cache invalidation service
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	observability.GetLogger().Info().Msg("cache invalidation service stopped")
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.MarketplaceEvent) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			s.handleEvent(event)
		}
	}
}

// handleEvent deletes the cached entity the event made stale
func (s *CacheInvalidationService) handleEvent(event *entities.MarketplaceEvent) {
	var key string
	switch event.EventType {
	case entities.EventTypeRatingRecomputed:
		target := entities.RatingTarget(event.StringField("target"))
		k, ok := providers.RatingTargetCacheKey(target, event.AggregateID)
		if !ok {
			observability.GetLogger().Warn().
				Str("event_id", event.ID).
				Str("target", string(target)).
				Msg("rating event without a known target")
			return
		}
		key = k
	case entities.EventTypeBookingStatusChanged:
		providerID := event.StringField("provider_id")
		if event.StringField("status") != string(entities.BookingStatusCompleted) || providerID == "" {
			return
		}
		key = providers.ProviderCacheKey(providerID)
	default:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.Delete(ctx, key); err != nil {
		observability.GetLogger().Warn().Err(err).Str("key", key).Msg("failed to invalidate cache entry")
		return
	}
	observability.GetLogger().Debug().Str("key", key).Msg("invalidated cache entry")
}
