package esp

import (
	"encoding/json"
	"fmt"

	"github.com/ignite/mailtrack/internal/domain"
)

var sendGridKinds = map[string]domain.EventType{
	"processed":         domain.EventQueued,
	"deferred":          domain.EventDeferred,
	"delivered":         domain.EventDelivered,
	"bounce":            domain.EventBounced,
	"dropped":           domain.EventRejected,
	"open":              domain.EventOpened,
	"click":             domain.EventClicked,
	"spamreport":        domain.EventComplained,
	"unsubscribe":       domain.EventUnsubscribed,
	"group_unsubscribe": domain.EventUnsubscribed,
	"group_resubscribe": domain.EventSubscribed,
}

// SendGrid normalizes Event Webhook batches. Custom args are flattened onto
// each event object next to SendGrid's own fields.
type SendGrid struct {
	metadataKey string
}

// NewSendGrid creates a SendGrid normalizer reading the correlation id from
// the custom arg metadataKey.
func NewSendGrid(metadataKey string) *SendGrid {
	return &SendGrid{metadataKey: metadataKey}
}

func (s *SendGrid) ESP() domain.ESPType { return domain.ESPSendGrid }

func (s *SendGrid) Normalize(body []byte) ([]domain.TrackingEvent, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("sendgrid: decode batch: %w", err)
	}

	events := make([]domain.TrackingEvent, 0, len(raw))
	for i, item := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, fmt.Errorf("sendgrid: decode event %d: %w", i, err)
		}
		var ev struct {
			Email     string  `json:"email"`
			Event     string  `json:"event"`
			Timestamp float64 `json:"timestamp"`
			EventID   string  `json:"sg_event_id"`
		}
		if err := json.Unmarshal(item, &ev); err != nil {
			return nil, fmt.Errorf("sendgrid: decode event %d: %w", i, err)
		}

		events = append(events, domain.TrackingEvent{
			ESP:           domain.ESPSendGrid,
			EventID:       ev.EventID,
			Kind:          lookupKind(sendGridKinds, ev.Event),
			Timestamp:     unixTime(ev.Timestamp),
			CorrelationID: metadataString(fields, s.metadataKey),
			Recipient:     ev.Email,
			Payload:       item,
		})
	}
	return events, nil
}
