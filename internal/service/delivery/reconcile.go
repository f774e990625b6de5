package delivery

import (
	"time"

	"github.com/ignite/mailtrack/internal/domain"
)

// FillFromEvent applies evt to r in place. It never fails; unsupported
// events must be filtered out with IsWebhookEventSupported first.
//
// Clicks and opens always count. Status and timestamp only move when the
// event is strictly newer than the recorded timestamp and the transition
// policy allows it. Because the staleness guard compares timestamps, a batch
// applied in any order converges on the newest event's status.
func FillFromEvent(r *domain.Recipient, evt domain.TrackingEvent) {
	candidate := evt.Kind
	switch evt.Kind {
	case domain.EventClicked:
		r.ClicksCount++
		return
	case domain.EventOpened:
		r.OpensCount++
		if inferDeliveryFromOpen(r) {
			return
		}
		candidate = domain.EventDelivered
	}

	if isStale(r.Timestamp, evt.Timestamp) {
		return
	}

	fresh := r.Timestamp == nil
	switch {
	case fresh && r.Status == candidate && evt.Kind != domain.EventOpened:
		// Confirms a status that was only inferred so far.
		r.Timestamp = copyTime(evt.Timestamp)
	case IsStatusTransitionAllowed(r.Status, candidate):
		r.Status = candidate
		r.Timestamp = copyTime(evt.Timestamp)
	default:
		return
	}

	if fresh && evt.Kind != domain.EventOpened {
		materialize(r, evt)
	}
}

// inferDeliveryFromOpen marks a recipient with no status as delivered: an
// open can only happen after delivery. The open says nothing reliable about
// when delivery happened or to which address, so neither is recorded.
func inferDeliveryFromOpen(r *domain.Recipient) bool {
	if r.Status != "" {
		return false
	}
	r.Status = domain.EventDelivered
	return true
}

// isStale reports whether an event at incoming must not move state recorded
// at recorded. Nothing is stale before the first timestamp is recorded.
func isStale(recorded, incoming *time.Time) bool {
	if recorded == nil {
		return false
	}
	if incoming == nil {
		return true
	}
	return !incoming.After(*recorded)
}

// materialize copies identifying fields from the first event applied to a
// recipient.
func materialize(r *domain.Recipient, evt domain.TrackingEvent) {
	if r.Address == "" && evt.Recipient != "" {
		r.Address = evt.Recipient
	}
	if len(evt.Payload) > 0 {
		r.LastEvent = append(r.LastEvent[:0:0], evt.Payload...)
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
