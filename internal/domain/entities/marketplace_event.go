package entities

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// MarketplaceEventType represents the type of a booking or review event
type MarketplaceEventType string

const (
	EventTypeBookingCreated          MarketplaceEventType = "booking.created"
	EventTypeBookingModified         MarketplaceEventType = "booking.modified"
	EventTypeBookingStatusChanged    MarketplaceEventType = "booking.status_changed"
	EventTypeReviewCreated           MarketplaceEventType = "review.created"
	EventTypeReviewUpdated           MarketplaceEventType = "review.updated"
	EventTypeReviewVisibilityChanged MarketplaceEventType = "review.visibility_changed"
	EventTypeRatingRecomputed        MarketplaceEventType = "rating.recomputed"
)

// MarketplaceEvent is published after a booking, review or rating change is persisted
type MarketplaceEvent struct {
	ID            string                 `json:"id"`
	EventType     MarketplaceEventType   `json:"event_type"`
	AggregateID   string                 `json:"aggregate_id"`
	Timestamp     time.Time              `json:"timestamp"`
	ChangedFields map[string]interface{} `json:"changed_fields"`
}

// NewMarketplaceEvent creates a new event for the given aggregate
func NewMarketplaceEvent(aggregateID string, eventType MarketplaceEventType, changedFields map[string]interface{}) *MarketplaceEvent {
	return &MarketplaceEvent{
		ID:            generateEventID(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		Timestamp:     time.Now().UTC(),
		ChangedFields: changedFields,
	}
}

// StringField returns a string value from ChangedFields, or "" when absent
func (e *MarketplaceEvent) StringField(key string) string {
	if e == nil || e.ChangedFields == nil {
		return ""
	}
	v, _ := e.ChangedFields[key].(string)
	return v
}

// generateEventID generates a unique event ID
func generateEventID() string {
	return time.Now().Format("20060102150405") + "-" + randomString(8)
}

// randomString generates a random hex string of specified length
func randomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based if crypto/rand fails
		fallback := fmt.Sprintf("%016x", time.Now().UnixNano())
		return fallback[len(fallback)-length:]
	}
	return hex.EncodeToString(bytes)[:length]
}
