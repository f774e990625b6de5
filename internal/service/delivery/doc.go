// Package delivery reconciles ESP tracking events with per-recipient
// delivery state.
//
// Webhooks arrive batched, unordered and at least once. For every normalized
// event the service decides whether it is supported, whether it is stale
// relative to the recorded state, and how it moves the recipient's status
// and engagement counters:
//
//	webhook -> esp normalizer -> IsWebhookEventSupported -> Service.Dispatch
//	        -> Repository.UpdateRecipients (row lock) -> FillFromEvent
//
// The filter, the transition policy and the reconciler are pure and
// synchronous. Serialization per recipient is the repository's job; this
// package holds no locks of its own.
package delivery
