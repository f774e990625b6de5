package delivery

import "github.com/ignite/mailtrack/internal/domain"

// transitions maps each delivery status to the statuses it may move to.
// BOUNCED and REJECTED are terminal.
var transitions = map[domain.EventType]map[domain.EventType]bool{
	domain.EventQueued: {
		domain.EventDeferred:  true,
		domain.EventDelivered: true,
		domain.EventBounced:   true,
		domain.EventRejected:  true,
	},
	domain.EventDeferred: {
		domain.EventDelivered: true,
		domain.EventBounced:   true,
		domain.EventRejected:  true,
	},
	domain.EventDelivered: {
		domain.EventBounced: true,
	},
	domain.EventBounced:  {},
	domain.EventRejected: {},
}

// IsStatusTransitionAllowed reports whether a recipient at current may move
// to candidate. Any first status is accepted and engagement kinds are never
// blocked; everything else goes through the transition table, which has no
// self loops.
func IsStatusTransitionAllowed(current, candidate domain.EventType) bool {
	if current == "" {
		return true
	}
	if candidate.IsEngagement() {
		return true
	}
	return transitions[current][candidate]
}
