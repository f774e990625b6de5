package mailer

import (
	"context"
	"fmt"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/domain"
)

// Outgoing is a rendered message ready for transmission.
type Outgoing struct {
	ID         string
	From       string
	Recipients []string
	Raw        []byte
}

// Sender transmits rendered messages to an ESP.
type Sender interface {
	Send(ctx context.Context, msg *Outgoing) (*domain.SendResult, error)
}

// NewSender returns the sender selected by cfg.Mail.Sender.
func NewSender(ctx context.Context, cfg *config.Config) (Sender, error) {
	switch cfg.Mail.Sender {
	case config.SenderSES:
		return NewSESSender(ctx, cfg.SES, cfg.Mail.MetadataKey)
	case config.SenderSMTP, "":
		return NewSMTPSender(cfg.SMTP), nil
	default:
		return nil, fmt.Errorf("unknown mail sender %q", cfg.Mail.Sender)
	}
}
