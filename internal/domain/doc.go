// Package domain holds the mailtrack value types: stored messages and their
// recipients, attachments, and the normalized tracking events providers send
// back about them.
//
// A Recipient is the only mutable record; its Status and Timestamp change
// through the delivery reconciler and its counters only grow. TrackingEvent
// is produced by an ESP normalizer and consumed by the delivery service.
//
// Keep this package free of storage and transport: no internal/ imports,
// no *sql.DB or http types, no context.Context in structs. Tags and pure
// predicates such as Recipient.MatchesAddress are fine.
package domain
