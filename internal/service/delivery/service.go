package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// Service routes tracking events to the recipients they describe. It is
// safe for concurrent use; per-recipient ordering is enforced by the
// repository's transactional update.
type Service struct {
	repo Repository
}

// NewService creates a delivery service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Dispatch applies one event. Unsupported events, unknown correlation ids
// and unmatched recipients are dropped without error: providers retry, and
// test or staging traffic routinely references records that do not exist.
// Only storage failures are returned.
func (s *Service) Dispatch(ctx context.Context, evt domain.TrackingEvent) error {
	if !IsWebhookEventSupported(evt) {
		logger.Debug("tracking event ignored",
			"esp", evt.ESP, "kind", evt.Kind, "event_id", evt.EventID)
		return nil
	}

	updated, err := s.repo.UpdateRecipients(ctx, evt.CorrelationID, evt.Recipient, func(r *domain.Recipient) {
		FillFromEvent(r, evt)
	})
	switch {
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrRecipientNotFound):
		logger.Debug("tracking event discarded",
			"reason", err.Error(), "correlation_id", evt.CorrelationID, "recipient", evt.Recipient)
		return nil
	case err != nil:
		return fmt.Errorf("apply %s event to message %s: %w", evt.Kind, evt.CorrelationID, err)
	}

	for _, r := range updated {
		logger.Debug("recipient updated",
			"message_id", r.MessageID, "recipient", r.Address, "status", r.Status,
			"opens", r.OpensCount, "clicks", r.ClicksCount)
	}
	return nil
}

// DispatchBatch applies events in receipt order. A failing event does not
// stop the rest of the batch; all failures are returned joined.
func (s *Service) DispatchBatch(ctx context.Context, events []domain.TrackingEvent) error {
	var errs []error
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.Dispatch(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
