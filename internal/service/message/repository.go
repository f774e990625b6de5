package message

import (
	"context"
	"time"

	"github.com/ignite/mailtrack/internal/domain"
)

// Repository defines the data access contract for messages and attachments.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts m, its recipients and links to attachmentIDs in one
	// transaction. Returns ErrAttachmentNotFound if any id is unknown.
	Create(ctx context.Context, m *domain.Message, attachmentIDs []string) error

	// Get returns a message with its recipients and attachments.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Message, error)

	// MarkSent records the send time and provider id. Returns ErrAlreadySent
	// if the message was marked before.
	MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error

	CreateAttachment(ctx context.Context, a *domain.Attachment) error
}
