package events

import (
	"context"
	"sync"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
)

// LocalEventBus delivers events to subscribers in the same process only
type LocalEventBus struct {
	fanout *fanout
	once   sync.Once
	done   chan struct{}
}

// NewLocalEventBus creates an in-process event bus
func NewLocalEventBus() providers.EventBus {
	return &LocalEventBus{fanout: newFanout(), done: make(chan struct{})}
}

func (b *LocalEventBus) Publish(ctx context.Context, channel string, event *entities.MarketplaceEvent) error {
	select {
	case <-b.done:
		return nil
	default:
	}
	b.fanout.broadcast(channel, event)
	return nil
}

func (b *LocalEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.MarketplaceEvent, error) {
	eventChan, _ := b.fanout.add(channel)
	go func() {
		select {
		case <-ctx.Done():
			b.fanout.remove(channel, eventChan)
		case <-b.done:
		}
	}()
	return eventChan, nil
}

func (b *LocalEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.fanout.closeChannel(channel)
	return nil
}

func (b *LocalEventBus) Close() error {
	b.once.Do(func() {
		close(b.done)
		b.fanout.closeAll()
	})
	return nil
}
