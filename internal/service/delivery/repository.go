package delivery

import (
	"context"

	"github.com/ignite/mailtrack/internal/domain"
)

// Repository defines the data access contract for recipient tracking state.
type Repository interface {
	// UpdateRecipients locks every recipient of messageID whose address
	// matches, calls apply on each, and persists the results atomically.
	// An empty address selects the message's sole recipient. Returns
	// ErrMessageNotFound or ErrRecipientNotFound when nothing matches.
	UpdateRecipients(ctx context.Context, messageID, address string, apply func(*domain.Recipient)) ([]domain.Recipient, error)
}
