package message

import "errors"

// Sentinel errors for the message service layer.
var (
	ErrNotFound           = errors.New("message not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrNoRecipients       = errors.New("message has no recipients")
	ErrInvalidAddress     = errors.New("invalid email address")
	ErrAlreadySent        = errors.New("message already sent")
	ErrMissingFilename    = errors.New("attachment filename is required")
)
