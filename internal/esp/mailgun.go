package esp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/mailtrack/internal/domain"
)

var mailgunKinds = map[string]domain.EventType{
	"accepted":     domain.EventQueued,
	"delivered":    domain.EventDelivered,
	"rejected":     domain.EventRejected,
	"opened":       domain.EventOpened,
	"clicked":      domain.EventClicked,
	"complained":   domain.EventComplained,
	"unsubscribed": domain.EventUnsubscribed,
}

// Mailgun normalizes webhook notifications, which carry a single event in
// event-data. Custom variables travel in user-variables.
type Mailgun struct {
	metadataKey string
}

// NewMailgun creates a Mailgun normalizer reading the correlation id from
// user-variables[metadataKey].
func NewMailgun(metadataKey string) *Mailgun {
	return &Mailgun{metadataKey: metadataKey}
}

func (m *Mailgun) ESP() domain.ESPType { return domain.ESPMailgun }

func (m *Mailgun) Normalize(body []byte) ([]domain.TrackingEvent, error) {
	var envelope struct {
		EventData json.RawMessage `json:"event-data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("mailgun: decode notification: %w", err)
	}
	if len(envelope.EventData) == 0 {
		return nil, fmt.Errorf("mailgun: missing event-data")
	}

	var ev struct {
		Event         string                     `json:"event"`
		ID            string                     `json:"id"`
		Timestamp     float64                    `json:"timestamp"`
		Recipient     string                     `json:"recipient"`
		Severity      string                     `json:"severity"`
		Reason        string                     `json:"reason"`
		UserVariables map[string]json.RawMessage `json:"user-variables"`
	}
	if err := json.Unmarshal(envelope.EventData, &ev); err != nil {
		return nil, fmt.Errorf("mailgun: decode event-data: %w", err)
	}

	return []domain.TrackingEvent{{
		ESP:           domain.ESPMailgun,
		EventID:       ev.ID,
		Kind:          mailgunKind(ev.Event, ev.Severity, ev.Reason),
		Timestamp:     unixTime(ev.Timestamp),
		CorrelationID: metadataString(ev.UserVariables, m.metadataKey),
		Recipient:     ev.Recipient,
		Payload:       envelope.EventData,
	}}, nil
}

// mailgunKind splits Mailgun's single "failed" event: temporary failures are
// retried by Mailgun, permanent ones bounced, and suppress-* reasons mean
// Mailgun refused to attempt delivery at all.
func mailgunKind(event, severity, reason string) domain.EventType {
	if strings.ToLower(event) != "failed" {
		return lookupKind(mailgunKinds, event)
	}
	if strings.EqualFold(severity, "temporary") {
		return domain.EventDeferred
	}
	if strings.HasPrefix(strings.ToLower(reason), "suppress-") {
		return domain.EventRejected
	}
	return domain.EventBounced
}
