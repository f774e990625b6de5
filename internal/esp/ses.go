package esp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/mailtrack/internal/domain"
)

var sesKinds = map[string]domain.EventType{
	"send":              domain.EventQueued,
	"delivery":          domain.EventDelivered,
	"deliverydelay":     domain.EventDeferred,
	"reject":            domain.EventRejected,
	"complaint":         domain.EventComplained,
	"open":              domain.EventOpened,
	"click":             domain.EventClicked,
	"rendering failure": domain.EventFailed,
	"subscription":      domain.EventUnsubscribed,
}

// snsEnvelope is the SNS HTTP(S) delivery wrapper around an SES event.
type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

type sesAddress struct {
	EmailAddress string `json:"emailAddress"`
}

type sesEvent struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		Timestamp   string              `json:"timestamp"`
		MessageID   string              `json:"messageId"`
		Destination []string            `json:"destination"`
		Tags        map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce *struct {
		BounceType        string       `json:"bounceType"`
		BouncedRecipients []sesAddress `json:"bouncedRecipients"`
		Timestamp         string       `json:"timestamp"`
	} `json:"bounce"`
	Complaint *struct {
		ComplainedRecipients []sesAddress `json:"complainedRecipients"`
		Timestamp            string       `json:"timestamp"`
	} `json:"complaint"`
	Delivery *struct {
		Recipients []string `json:"recipients"`
		Timestamp  string   `json:"timestamp"`
	} `json:"delivery"`
	DeliveryDelay *struct {
		DelayedRecipients []sesAddress `json:"delayedRecipients"`
		Timestamp         string       `json:"timestamp"`
	} `json:"deliveryDelay"`
	Open *struct {
		Timestamp string `json:"timestamp"`
	} `json:"open"`
	Click *struct {
		Timestamp string `json:"timestamp"`
	} `json:"click"`
}

// SES normalizes SES event publishing notifications delivered through an SNS
// HTTP subscription. One SES event fans out to one TrackingEvent per affected
// recipient.
type SES struct {
	metadataKey string
}

// NewSES creates an SES normalizer reading the correlation id from the
// message tag metadataKey.
func NewSES(metadataKey string) *SES {
	return &SES{metadataKey: metadataKey}
}

func (s *SES) ESP() domain.ESPType { return domain.ESPSES }

// SubscribeURL reports SNS subscription confirmation requests.
func (s *SES) SubscribeURL(body []byte) (string, bool) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", false
	}
	if env.Type != "SubscriptionConfirmation" || env.SubscribeURL == "" {
		return "", false
	}
	return env.SubscribeURL, true
}

func (s *SES) Normalize(body []byte) ([]domain.TrackingEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("ses: decode sns envelope: %w", err)
	}
	switch env.Type {
	case "Notification":
	case "SubscriptionConfirmation", "UnsubscribeConfirmation":
		return nil, nil
	default:
		return nil, fmt.Errorf("ses: unexpected sns message type %q", env.Type)
	}

	var ev sesEvent
	if err := json.Unmarshal([]byte(env.Message), &ev); err != nil {
		return nil, fmt.Errorf("ses: decode event: %w", err)
	}

	name := ev.EventType
	if name == "" {
		name = ev.NotificationType
	}
	kind, recipients, at := s.classify(name, &ev)

	var correlationID string
	if values := ev.Mail.Tags[s.metadataKey]; len(values) > 0 {
		correlationID = values[0]
	}
	if len(recipients) == 0 {
		recipients = ev.Mail.Destination
		// Opens and clicks do not say who engaged. With several
		// destinations the event goes out without an address, which
		// only lands on single-recipient messages.
		if (kind == domain.EventOpened || kind == domain.EventClicked) && len(recipients) != 1 {
			recipients = []string{""}
		}
	}
	if at == "" {
		at = ev.Mail.Timestamp
	}

	payload := json.RawMessage(env.Message)
	events := make([]domain.TrackingEvent, 0, len(recipients))
	for _, rcpt := range recipients {
		events = append(events, domain.TrackingEvent{
			ESP:           domain.ESPSES,
			EventID:       env.MessageID,
			Kind:          kind,
			Timestamp:     parseTimestamp(at),
			CorrelationID: correlationID,
			Recipient:     rcpt,
			Payload:       payload,
		})
	}
	return events, nil
}

// classify returns the event kind, the recipients the event concerns and the
// event's own timestamp. An empty recipient list means all destinations.
func (s *SES) classify(name string, ev *sesEvent) (domain.EventType, []string, string) {
	switch strings.ToLower(name) {
	case "bounce":
		if ev.Bounce == nil {
			return domain.EventBounced, nil, ""
		}
		kind := domain.EventBounced
		if !strings.EqualFold(ev.Bounce.BounceType, "Permanent") {
			kind = domain.EventDeferred
		}
		return kind, addresses(ev.Bounce.BouncedRecipients), ev.Bounce.Timestamp
	case "complaint":
		if ev.Complaint == nil {
			return domain.EventComplained, nil, ""
		}
		return domain.EventComplained, addresses(ev.Complaint.ComplainedRecipients), ev.Complaint.Timestamp
	case "delivery":
		if ev.Delivery == nil {
			return domain.EventDelivered, nil, ""
		}
		return domain.EventDelivered, ev.Delivery.Recipients, ev.Delivery.Timestamp
	case "deliverydelay":
		if ev.DeliveryDelay == nil {
			return domain.EventDeferred, nil, ""
		}
		return domain.EventDeferred, addresses(ev.DeliveryDelay.DelayedRecipients), ev.DeliveryDelay.Timestamp
	case "open":
		if ev.Open == nil {
			return domain.EventOpened, nil, ""
		}
		return domain.EventOpened, nil, ev.Open.Timestamp
	case "click":
		if ev.Click == nil {
			return domain.EventClicked, nil, ""
		}
		return domain.EventClicked, nil, ev.Click.Timestamp
	}
	return lookupKind(sesKinds, name), nil, ""
}

func addresses(list []sesAddress) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		if a.EmailAddress != "" {
			out = append(out, a.EmailAddress)
		}
	}
	return out
}
