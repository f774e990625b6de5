package message

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/mailer"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/storage"
)

// Options configures message composition.
type Options struct {
	DefaultFrom         string
	AttachmentUploadTo  string
	HTMLMessageUploadTo string
}

// Service implements message business logic. All public methods are safe
// for concurrent use if the repository, blob store and sender are.
type Service struct {
	repo    Repository
	blobs   storage.Blob
	builder *mailer.Builder
	sender  mailer.Sender
	opts    Options
	now     func() time.Time
}

// NewService creates a message service.
func NewService(repo Repository, blobs storage.Blob, builder *mailer.Builder, sender mailer.Sender, opts Options) *Service {
	return &Service{
		repo:    repo,
		blobs:   blobs,
		builder: builder,
		sender:  sender,
		opts:    opts,
		now:     time.Now,
	}
}

// Draft holds the fields for creating a message.
type Draft struct {
	To            []string `json:"to"`
	Cc            []string `json:"cc"`
	Bcc           []string `json:"bcc"`
	Subject       string   `json:"subject"`
	Body          string   `json:"body"`
	HTMLMessage   string   `json:"html_message"`
	FromEmail     string   `json:"from_email"`
	ReplyTo       []string `json:"reply_to"`
	AttachmentIDs []string `json:"attachments"`
	CreatedBy     string   `json:"created_by"`
}

// CreateWithObjects validates d and persists the message with its
// recipients, HTML body and attachment links. When Body is empty it is
// derived from HTMLMessage.
func (s *Service) CreateWithObjects(ctx context.Context, d Draft) (*domain.Message, error) {
	if len(d.To)+len(d.Cc)+len(d.Bcc) == 0 {
		return nil, ErrNoRecipients
	}
	from := d.FromEmail
	if from == "" {
		from = s.opts.DefaultFrom
	}
	for _, list := range [][]string{{from}, d.To, d.Cc, d.Bcc, d.ReplyTo} {
		for _, a := range list {
			if _, err := mail.ParseAddress(a); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, a)
			}
		}
	}

	now := s.now().UTC()
	m := &domain.Message{
		ID:        uuid.New().String(),
		FromEmail: from,
		Subject:   d.Subject,
		Body:      d.Body,
		ReplyTo:   d.ReplyTo,
		CreatedBy: d.CreatedBy,
		CreatedAt: now,
	}
	if m.Body == "" && d.HTMLMessage != "" {
		m.Body = mailer.HTMLToText(d.HTMLMessage)
	}

	for _, group := range []struct {
		kind  domain.RecipientKind
		addrs []string
	}{{domain.RecipientTo, d.To}, {domain.RecipientCc, d.Cc}, {domain.RecipientBcc, d.Bcc}} {
		for _, addr := range group.addrs {
			m.Recipients = append(m.Recipients, domain.Recipient{
				ID:        uuid.New().String(),
				MessageID: m.ID,
				Kind:      group.kind,
				Address:   strings.TrimSpace(addr),
			})
		}
	}

	if d.HTMLMessage != "" {
		key := storage.UploadPath(s.opts.HTMLMessageUploadTo, m.ID, m.ID+".html", now)
		if _, err := s.blobs.Put(ctx, key, strings.NewReader(d.HTMLMessage), "text/html; charset=utf-8"); err != nil {
			return nil, fmt.Errorf("store html message: %w", err)
		}
		m.HTMLPath = key
	}

	if err := s.repo.Create(ctx, m, d.AttachmentIDs); err != nil {
		if m.HTMLPath != "" {
			if derr := s.blobs.Delete(ctx, m.HTMLPath); derr != nil {
				logger.Warn("orphaned html message", "path", m.HTMLPath, "error", derr)
			}
		}
		return nil, err
	}

	logger.Info("message created", "message_id", m.ID, "recipients", len(m.Recipients),
		"attachments", len(d.AttachmentIDs))
	return s.repo.Get(ctx, m.ID)
}

// CreateAttachment stores content under the attachment upload path and
// records it. An empty mimeType is guessed from the filename.
func (s *Service) CreateAttachment(ctx context.Context, filename, mimeType string, content io.Reader) (*domain.Attachment, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, ErrMissingFilename
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(path.Ext(filename))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	now := s.now().UTC()
	a := &domain.Attachment{
		ID:        uuid.New().String(),
		Filename:  filename,
		MIMEType:  mimeType,
		CreatedAt: now,
	}
	a.Path = storage.UniqueUploadPath(s.opts.AttachmentUploadTo, a.ID, filename, now)

	size, err := s.blobs.Put(ctx, a.Path, content, mimeType)
	if err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}
	a.Size = size

	if err := s.repo.CreateAttachment(ctx, a); err != nil {
		if derr := s.blobs.Delete(ctx, a.Path); derr != nil {
			logger.Warn("orphaned attachment", "path", a.Path, "error", derr)
		}
		return nil, err
	}
	return a, nil
}

// Get returns a message with its recipients and attachments.
func (s *Service) Get(ctx context.Context, id string) (*domain.Message, error) {
	return s.repo.Get(ctx, id)
}

// Build renders m to MIME, loading the HTML body and attachments from blob
// storage.
func (s *Service) Build(ctx context.Context, m *domain.Message) (*mailer.Email, []byte, error) {
	e := &mailer.Email{
		ID:      m.ID,
		From:    m.FromEmail,
		To:      m.Addresses(domain.RecipientTo),
		Cc:      m.Addresses(domain.RecipientCc),
		Bcc:     m.Addresses(domain.RecipientBcc),
		ReplyTo: m.ReplyTo,
		Subject: m.Subject,
		Text:    m.Body,
		Date:    s.now(),
	}

	if m.HTMLPath != "" {
		html, err := s.readBlob(ctx, m.HTMLPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load html message: %w", err)
		}
		e.HTML = string(html)
	}
	for _, a := range m.Attachments {
		data, err := s.readBlob(ctx, a.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("load attachment %s: %w", a.Filename, err)
		}
		e.Attachments = append(e.Attachments, mailer.Attachment{
			Filename: a.Filename,
			MIMEType: a.MIMEType,
			Content:  bytes.NewReader(data),
		})
	}

	raw, err := s.builder.Build(e)
	if err != nil {
		return nil, nil, fmt.Errorf("build message %s: %w", m.ID, err)
	}
	return e, raw, nil
}

// Send builds and transmits message id, then records it as sent. Returns
// the number of messages sent.
func (s *Service) Send(ctx context.Context, id string) (int, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if m.SentAt != nil {
		return 0, ErrAlreadySent
	}

	e, raw, err := s.Build(ctx, m)
	if err != nil {
		return 0, err
	}

	res, err := s.sender.Send(ctx, &mailer.Outgoing{
		ID:         m.ID,
		From:       envelopeFrom(m.FromEmail),
		Recipients: e.Envelope(),
		Raw:        raw,
	})
	if err != nil {
		return 0, fmt.Errorf("send message %s: %w", m.ID, err)
	}

	if err := s.repo.MarkSent(ctx, m.ID, res.ProviderMessageID, res.SentAt); err != nil {
		if errors.Is(err, ErrAlreadySent) {
			logger.Warn("message sent concurrently", "message_id", m.ID)
		}
		return 0, fmt.Errorf("mark message %s sent: %w", m.ID, err)
	}
	return 1, nil
}

func (s *Service) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func envelopeFrom(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return from
}
