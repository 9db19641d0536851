package services

import (
	"context"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
)

// publishEvent publishes after the change is durable, so a bus failure is logged and not returned.
func publishEvent(ctx context.Context, bus providers.EventBus, channel string, event *entities.MarketplaceEvent) {
	if bus == nil || event == nil {
		return
	}
	if err := bus.Publish(ctx, channel, event); err != nil {
		observability.LoggerFromContext(ctx).Warn().
			Err(err).
			Str("channel", channel).
			Str("event_type", string(event.EventType)).
			Str("aggregate_id", event.AggregateID).
			Msg("failed to publish event")
	}
}
