package providers

import (
	"context"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.MarketplaceEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.MarketplaceEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event types
const (
	// EventChannelBookingUpdates carries booking lifecycle events
	EventChannelBookingUpdates = "bookings:updates"

	// EventChannelReviewUpdates carries review create/edit/moderation events
	EventChannelReviewUpdates = "reviews:updates"

	// EventChannelRatingUpdates carries recomputed aggregates
	EventChannelRatingUpdates = "ratings:updates"
)
