// Package httputil provides shared HTTP response helpers for the API and
// webhook handlers, so every endpoint emits the same JSON envelope.
package httputil
