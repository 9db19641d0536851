package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/servicemarket/internal/domain/entities"
	"github.com/zatekoja/servicemarket/internal/domain/providers"
	redisclient "github.com/zatekoja/servicemarket/internal/infrastructure/clients/redis"
	"github.com/zatekoja/servicemarket/pkg/config"
	"github.com/zatekoja/servicemarket/pkg/retry"
)

func receive(t *testing.T, ch <-chan *entities.MarketplaceEvent) *entities.MarketplaceEvent {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestLocalEventBus(t *testing.T) {
	bus := NewLocalEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	first, err := bus.Subscribe(ctx, providers.EventChannelBookingUpdates)
	require.NoError(t, err)
	second, err := bus.Subscribe(context.Background(), providers.EventChannelBookingUpdates)
	require.NoError(t, err)

	event := entities.NewMarketplaceEvent("b-1", entities.EventTypeBookingCreated, nil)
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelBookingUpdates, event))
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelReviewUpdates, event))

	assert.Equal(t, event.ID, receive(t, first).ID)
	assert.Equal(t, event.ID, receive(t, second).ID)

	cancel()
	_, ok := <-first
	assert.False(t, ok, "cancelled subscriber should be closed")

	require.NoError(t, bus.Close())
	_, ok = <-second
	assert.False(t, ok)
	assert.NoError(t, bus.Publish(context.Background(), providers.EventChannelBookingUpdates, event))
}

func TestRedisEventBus_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	bus := NewRedisEventBus(redisclient.NewFromClient(db, ""))

	event := entities.NewMarketplaceEvent("b-1", entities.EventTypeBookingStatusChanged, map[string]interface{}{"status": "confirmed"})
	data, err := json.Marshal(event)
	require.NoError(t, err)

	mock.ExpectPublish(providers.EventChannelBookingUpdates, data).SetVal(1)
	mock.ExpectPublish(providers.EventChannelBookingUpdates, data).SetErr(errors.New("connection refused"))

	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelBookingUpdates, event))
	assert.Error(t, bus.Publish(context.Background(), providers.EventChannelBookingUpdates, event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

type fakeReader struct {
	messages chan kafka.Message
	closed   chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{messages: make(chan kafka.Message, 10), closed: make(chan struct{})}
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case msg := <-r.messages:
		return msg, nil
	}
}

func (r *fakeReader) Close() error {
	close(r.closed)
	return nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}
}

func TestKafkaEventBus_PublishRetriesAndSetsHeaders(t *testing.T) {
	writer := &fakeWriter{failures: 2}
	cfg := config.KafkaConfig{TopicPrefix: "servicemarket"}
	bus := newKafkaEventBus(cfg, writer, nil, fastRetry())

	event := entities.NewMarketplaceEvent("b-1", entities.EventTypeBookingCreated, nil)
	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelBookingUpdates, event))

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "servicemarket.bookings.updates", msg.Topic)
	assert.Equal(t, "b-1", string(msg.Key))
	assert.Equal(t, event.ID, headerValue(msg, headerEventID))
	assert.Equal(t, string(entities.EventTypeBookingCreated), headerValue(msg, headerEventType))

	writer.failures = 5
	assert.Error(t, bus.Publish(context.Background(), providers.EventChannelBookingUpdates, event))
}

func TestKafkaEventBus_SubscribeDeliversAndStops(t *testing.T) {
	reader := newFakeReader()
	var topics []string
	writer := &fakeWriter{}
	bus := newKafkaEventBus(config.KafkaConfig{}, writer, func(topic string) messageReader {
		topics = append(topics, topic)
		return reader
	}, fastRetry())

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx, providers.EventChannelRatingUpdates)
	require.NoError(t, err)
	assert.Equal(t, []string{"ratings.updates"}, topics)

	reader.messages <- kafka.Message{Value: []byte("not json")}
	event := entities.NewMarketplaceEvent("svc-1", entities.EventTypeRatingRecomputed, map[string]interface{}{"target": "service"})
	data, err := json.Marshal(event)
	require.NoError(t, err)
	reader.messages <- kafka.Message{Value: data}

	got := receive(t, ch)
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, "service", got.StringField("target"))

	cancel()
	select {
	case <-reader.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("reader not closed after last subscriber left")
	}

	require.NoError(t, bus.Close())
	assert.True(t, writer.closed)
	_, err = bus.Subscribe(context.Background(), providers.EventChannelRatingUpdates)
	assert.Error(t, err)
}
