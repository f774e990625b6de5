package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/ignite/mailtrack/internal/config"
	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/logger"
)

// SMTPSender relays messages through an SMTP server. With starttls set the
// session is upgraded before anything else is sent and a server without
// STARTTLS is an error. Credentials are sent with PLAIN.
type SMTPSender struct {
	addr     string
	host     string
	username string
	password string
	starttls bool
	timeout  time.Duration

	// tlsConfig overrides the STARTTLS configuration.
	tlsConfig *tls.Config
}

// NewSMTPSender creates a sender for cfg.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		addr:     cfg.Addr(),
		host:     cfg.Host,
		username: cfg.Username,
		password: cfg.Password,
		starttls: cfg.StartTLS,
		timeout:  30 * time.Second,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg *Outgoing) (*domain.SendResult, error) {
	if len(msg.Recipients) == 0 {
		return nil, fmt.Errorf("smtp send: no recipients")
	}

	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", s.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if s.timeout > 0 {
		conn.SetDeadline(time.Now().Add(s.timeout))
	}

	c, err := s.newClient(conn)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if s.username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return nil, fmt.Errorf("smtp auth: server does not support AUTH")
		}
		if err := c.Auth(sasl.NewPlainClient("", s.username, s.password)); err != nil {
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.SendMail(msg.From, msg.Recipients, bytes.NewReader(msg.Raw)); err != nil {
		return nil, fmt.Errorf("smtp send: %w", err)
	}
	if err := c.Quit(); err != nil {
		logger.Warn("smtp quit failed", "addr", s.addr, "error", err)
	}

	logger.Info("message sent", "esp", domain.ESPSMTP, "message_id", msg.ID,
		"recipients", len(msg.Recipients))

	return &domain.SendResult{
		ESPType:  domain.ESPSMTP,
		Accepted: len(msg.Recipients),
		SentAt:   time.Now().UTC(),
	}, nil
}

func (s *SMTPSender) newClient(conn net.Conn) (*smtp.Client, error) {
	if !s.starttls {
		return smtp.NewClient(conn), nil
	}
	tlsConfig := s.tlsConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: s.host}
	}
	c, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("smtp starttls: %w", err)
	}
	return c, nil
}
