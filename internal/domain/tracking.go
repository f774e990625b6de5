package domain

import (
	"encoding/json"
	"time"
)

// EventType enumerates the normalized ESP tracking event kinds.
// A recipient's delivery status holds one of the delivery kinds.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventDeferred  EventType = "deferred"
	EventDelivered EventType = "delivered"
	EventBounced   EventType = "bounced"
	EventRejected  EventType = "rejected"
	EventOpened    EventType = "opened"
	EventClicked   EventType = "clicked"

	// Kinds providers report that this service does not track.
	EventComplained   EventType = "complained"
	EventUnsubscribed EventType = "unsubscribed"
	EventSubscribed   EventType = "subscribed"
	EventSent         EventType = "sent"
	EventFailed       EventType = "failed"
	EventUnknown      EventType = "unknown"
)

// IsEngagement reports whether t is an additive engagement kind.
func (t EventType) IsEngagement() bool {
	return t == EventOpened || t == EventClicked
}

// TrackingEvent is one normalized webhook notification. It is produced by an
// ESP normalizer and never persisted on its own.
type TrackingEvent struct {
	ESP           ESPType         `json:"esp"`
	EventID       string          `json:"event_id,omitempty"`
	Kind          EventType       `json:"kind"`
	Timestamp     *time.Time      `json:"timestamp,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Recipient     string          `json:"recipient,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}
