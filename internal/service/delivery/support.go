package delivery

import (
	"strings"

	"github.com/ignite/mailtrack/internal/domain"
)

var supportedKinds = map[domain.EventType]bool{
	domain.EventQueued:    true,
	domain.EventDeferred:  true,
	domain.EventDelivered: true,
	domain.EventBounced:   true,
	domain.EventRejected:  true,
	domain.EventOpened:    true,
	domain.EventClicked:   true,
}

// IsWebhookEventSupported reports whether evt is actionable: it carries a
// correlation id and a kind this service tracks.
func IsWebhookEventSupported(evt domain.TrackingEvent) bool {
	if strings.TrimSpace(evt.CorrelationID) == "" {
		return false
	}
	return supportedKinds[evt.Kind]
}
