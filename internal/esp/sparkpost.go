package esp

import (
	"encoding/json"
	"fmt"

	"github.com/ignite/mailtrack/internal/domain"
)

var sparkPostKinds = map[string]domain.EventType{
	"injection":            domain.EventQueued,
	"delay":                domain.EventDeferred,
	"delivery":             domain.EventDelivered,
	"bounce":               domain.EventBounced,
	"out_of_band":          domain.EventBounced,
	"policy_rejection":     domain.EventRejected,
	"generation_rejection": domain.EventRejected,
	"generation_failure":   domain.EventFailed,
	"spam_complaint":       domain.EventComplained,
	"open":                 domain.EventOpened,
	"initial_open":         domain.EventOpened,
	"amp_open":             domain.EventOpened,
	"amp_initial_open":     domain.EventOpened,
	"click":                domain.EventClicked,
	"amp_click":            domain.EventClicked,
	"list_unsubscribe":     domain.EventUnsubscribed,
	"link_unsubscribe":     domain.EventUnsubscribed,
}

// SparkPost normalizes webhook batches. Every element wraps one event in
// msys.<category>; recipient metadata travels in rcpt_meta.
type SparkPost struct {
	metadataKey string
}

// NewSparkPost creates a SparkPost normalizer reading the correlation id
// from rcpt_meta[metadataKey].
func NewSparkPost(metadataKey string) *SparkPost {
	return &SparkPost{metadataKey: metadataKey}
}

func (s *SparkPost) ESP() domain.ESPType { return domain.ESPSparkPost }

func (s *SparkPost) Normalize(body []byte) ([]domain.TrackingEvent, error) {
	var batch []struct {
		Msys map[string]json.RawMessage `json:"msys"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, fmt.Errorf("sparkpost: decode batch: %w", err)
	}

	var events []domain.TrackingEvent
	for i, item := range batch {
		// An empty msys object is SparkPost's webhook ping.
		for category, data := range item.Msys {
			var ev struct {
				Type      string                     `json:"type"`
				EventID   string                     `json:"event_id"`
				Recipient string                     `json:"rcpt_to"`
				Timestamp string                     `json:"timestamp"`
				RcptMeta  map[string]json.RawMessage `json:"rcpt_meta"`
			}
			if err := json.Unmarshal(data, &ev); err != nil {
				return nil, fmt.Errorf("sparkpost: decode %s %d: %w", category, i, err)
			}

			events = append(events, domain.TrackingEvent{
				ESP:           domain.ESPSparkPost,
				EventID:       ev.EventID,
				Kind:          lookupKind(sparkPostKinds, ev.Type),
				Timestamp:     parseTimestamp(ev.Timestamp),
				CorrelationID: metadataString(ev.RcptMeta, s.metadataKey),
				Recipient:     ev.Recipient,
				Payload:       data,
			})
		}
	}
	return events, nil
}
