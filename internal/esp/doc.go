// Package esp decodes provider webhook payloads into normalized
// domain.TrackingEvent values.
//
// Each provider gets a Normalizer. Normalizers map the provider's event names
// onto domain.EventType, pull the correlation id out of the provider's
// per-message metadata (custom args, rcpt_meta, user-variables, SES tags)
// under a configurable key, and keep the provider's raw JSON for the event.
// Normalizers never decide whether an event is actionable; that belongs to
// the delivery service.
package esp
