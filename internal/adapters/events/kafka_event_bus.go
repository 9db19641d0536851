package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	"github.com/zatekoja/servicemarket/internal/infrastructure/observability"
	"github.com/zatekoja/servicemarket/pkg/config"
	"github.com/zatekoja/servicemarket/pkg/retry"
)

const (
	headerEventID   = "event_id"
	headerEventType = "event_type"
	readErrorDelay  = time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type kafkaSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// KafkaEventBus implements the EventBus interface on Kafka topics, one per channel
type KafkaEventBus struct {
	cfg           config.KafkaConfig
	writer        messageWriter
	newReader     func(topic string) messageReader
	retryCfg      retry.Config
	fanout        *fanout
	subscriptions map[string]*kafkaSubscription
	mu            sync.Mutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewKafkaEventBus creates a Kafka-backed event bus
func NewKafkaEventBus(cfg *config.KafkaConfig) providers.EventBus {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	newReader := func(topic string) messageReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		})
	}
	return newKafkaEventBus(*cfg, writer, newReader, retry.PublishConfig())
}

func newKafkaEventBus(cfg config.KafkaConfig, writer messageWriter, newReader func(string) messageReader, retryCfg retry.Config) *KafkaEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &KafkaEventBus{
		cfg:           cfg,
		writer:        writer,
		newReader:     newReader,
		retryCfg:      retryCfg,
		fanout:        newFanout(),
		subscriptions: make(map[string]*kafkaSubscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Publish writes the event to the channel's topic keyed by aggregate ID
func (b *KafkaEventBus) Publish(ctx context.Context, channel string, event *entities.MarketplaceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := b.cfg.Topic(channel)
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(event.AggregateID),
		Value: data,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: headerEventID, Value: []byte(event.ID)},
			{Key: headerEventType, Value: []byte(event.EventType)},
		},
	}
	msg.Headers = injectTraceHeaders(ctx, msg.Headers)

	logger := observability.LoggerFromContext(ctx)
	err = retry.DoWithLog(ctx, b.retryCfg, "kafka publish", func() error {
		return b.writer.WriteMessages(ctx, msg)
	}, func(attempt int, err error, nextDelay time.Duration) {
		logger.Warn().Err(err).
			Str("topic", topic).
			Int("attempt", attempt).
			Dur("next_delay", nextDelay).
			Msg("kafka publish failed, retrying")
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	logger.Debug().
		Str("topic", topic).
		Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).
		Msg("published event")
	return nil
}

// Subscribe starts a consumer for the channel's topic on first use
func (b *KafkaEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.MarketplaceEvent, error) {
	if err := b.ctx.Err(); err != nil {
		return nil, errors.New("event bus is closed")
	}

	b.mu.Lock()
	if _, exists := b.subscriptions[channel]; !exists {
		consumeCtx, cancel := context.WithCancel(b.ctx)
		sub := &kafkaSubscription{cancel: cancel, done: make(chan struct{})}
		b.subscriptions[channel] = sub
		go b.consume(consumeCtx, channel, b.newReader(b.cfg.Topic(channel)), sub.done)
	}
	eventChan, subscriberCount := b.fanout.add(channel)
	b.mu.Unlock()

	observability.GetLogger().Info().
		Str("channel", channel).
		Str("topic", b.cfg.Topic(channel)).
		Int("subscribers", subscriberCount).
		Msg("subscribed to channel")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
			return
		}
		if b.fanout.remove(channel, eventChan) {
			b.stopConsumer(channel)
		}
	}()

	return eventChan, nil
}

func (b *KafkaEventBus) consume(ctx context.Context, channel string, reader messageReader, done chan struct{}) {
	logger := observability.GetLogger()
	defer close(done)
	defer func() {
		if err := reader.Close(); err != nil {
			logger.Warn().Err(err).Str("channel", channel).Msg("failed to close kafka reader")
		}
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Str("channel", channel).Msg("kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorDelay):
			}
			continue
		}

		var event entities.MarketplaceEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			observability.LoggerFromContext(extractTraceContext(ctx, msg)).Warn().Err(err).
				Str("channel", channel).
				Str("event_id", headerValue(msg, headerEventID)).
				Msg("failed to unmarshal event")
			continue
		}
		b.fanout.broadcast(channel, &event)
	}
}

func (b *KafkaEventBus) stopConsumer(channel string) {
	b.mu.Lock()
	sub, ok := b.subscriptions[channel]
	delete(b.subscriptions, channel)
	b.mu.Unlock()

	if ok {
		sub.cancel()
		<-sub.done
	}
}

// Unsubscribe stops the consumer and closes every subscriber of the channel
func (b *KafkaEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.stopConsumer(channel)
	b.fanout.closeChannel(channel)
	observability.LoggerFromContext(ctx).Info().Str("channel", channel).Msg("unsubscribed from channel")
	return nil
}

// Close stops all consumers and the writer
func (b *KafkaEventBus) Close() error {
	b.cancel()

	b.mu.Lock()
	channels := make([]string, 0, len(b.subscriptions))
	for channel := range b.subscriptions {
		channels = append(channels, channel)
	}
	b.mu.Unlock()

	for _, channel := range channels {
		b.stopConsumer(channel)
		b.fanout.closeChannel(channel)
	}

	if err := b.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	observability.GetLogger().Info().Msg("event bus closed")
	return nil
}
