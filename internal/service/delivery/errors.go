package delivery

import "errors"

// Sentinel errors returned by Repository implementations. The service treats
// both as expected noise and drops the event.
var (
	ErrMessageNotFound   = errors.New("message not found")
	ErrRecipientNotFound = errors.New("recipient not found")
)
