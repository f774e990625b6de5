package esp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
)

// ErrUnknownESP is returned by Registry.Get for providers without a normalizer.
var ErrUnknownESP = errors.New("unknown esp")

// Normalizer decodes one webhook request body into tracking events, in the
// order the provider listed them.
type Normalizer interface {
	ESP() domain.ESPType
	Normalize(body []byte) ([]domain.TrackingEvent, error)
}

// Confirmer is implemented by normalizers whose provider performs a
// subscription handshake over the webhook endpoint (SES via SNS).
type Confirmer interface {
	// SubscribeURL returns the URL to visit when body is a subscription
	// request rather than a notification.
	SubscribeURL(body []byte) (string, bool)
}

// Registry looks normalizers up by provider name.
type Registry struct {
	normalizers map[domain.ESPType]Normalizer
}

// NewRegistry returns a registry with every supported provider, each reading
// the correlation id from metadataKey.
func NewRegistry(metadataKey string) *Registry {
	r := &Registry{normalizers: make(map[domain.ESPType]Normalizer)}
	for _, n := range []Normalizer{
		NewSendGrid(metadataKey),
		NewSparkPost(metadataKey),
		NewMailgun(metadataKey),
		NewSES(metadataKey),
	} {
		r.normalizers[n.ESP()] = n
	}
	return r
}

// Get returns the normalizer for name.
func (r *Registry) Get(name string) (Normalizer, error) {
	n, ok := r.normalizers[domain.ESPType(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownESP, name)
	}
	return n, nil
}

// metadataString reads key from a provider metadata object. Providers echo
// custom args back as strings, but some JSON encoders turn numeric ids into
// numbers, so both are accepted.
func metadataString(meta map[string]json.RawMessage, key string) string {
	raw, ok := meta[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// unixTime converts a provider epoch timestamp, which may carry fractional
// seconds, into a UTC time.
func unixTime(sec float64) *time.Time {
	if sec <= 0 {
		return nil
	}
	whole := int64(sec)
	t := time.Unix(whole, int64((sec-float64(whole))*float64(time.Second))).UTC()
	return &t
}

// parseTimestamp accepts epoch seconds (integer or decimal string) and RFC 3339.
func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if sec, err := strconv.ParseFloat(s, 64); err == nil {
		return unixTime(sec)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func lookupKind(table map[string]domain.EventType, name string) domain.EventType {
	if kind, ok := table[strings.ToLower(name)]; ok {
		return kind
	}
	return domain.EventUnknown
}
