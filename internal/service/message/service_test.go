package message_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	gomail "github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/mailer"
	"github.com/ignite/mailtrack/internal/service/message"
	"github.com/ignite/mailtrack/internal/storage"
)

// memRepo is an in-memory message repository for unit testing.
type memRepo struct {
	mu          sync.Mutex
	messages    map[string]*domain.Message
	attachments map[string]domain.Attachment
	createErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{
		messages:    make(map[string]*domain.Message),
		attachments: make(map[string]domain.Attachment),
	}
}

func (m *memRepo) Create(_ context.Context, msg *domain.Message, attachmentIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cp := *msg
	cp.Recipients = append([]domain.Recipient(nil), msg.Recipients...)
	for _, id := range attachmentIDs {
		a, ok := m.attachments[id]
		if !ok {
			return message.ErrAttachmentNotFound
		}
		cp.Attachments = append(cp.Attachments, a)
	}
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, message.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memRepo) MarkSent(_ context.Context, id, providerID string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return message.ErrNotFound
	}
	if msg.SentAt != nil {
		return message.ErrAlreadySent
	}
	msg.SentAt = &sentAt
	msg.ProviderMessageID = providerID
	return nil
}

func (m *memRepo) CreateAttachment(_ context.Context, a *domain.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[a.ID] = *a
	return nil
}

// outbox records sent messages in place of an ESP.
type outbox struct {
	mu   sync.Mutex
	sent []*mailer.Outgoing
	err  error
}

func (o *outbox) Send(_ context.Context, msg *mailer.Outgoing) (*domain.SendResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	o.sent = append(o.sent, msg)
	return &domain.SendResult{
		ProviderMessageID: "provider-1",
		ESPType:           domain.ESPSMTP,
		Accepted:          len(msg.Recipients),
		SentAt:            time.Now().UTC(),
	}, nil
}

type fixture struct {
	repo   *memRepo
	blobs  *storage.LocalStore
	outbox *outbox
	svc    *message.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	f := &fixture{repo: newMemRepo(), blobs: blobs, outbox: &outbox{}}
	f.svc = message.NewService(f.repo, blobs, mailer.NewBuilder("mailtrack_id"), f.outbox, message.Options{
		DefaultFrom:         "webmaster@localhost",
		AttachmentUploadTo:  "emails/attachments/{yyyy}/{mm}/{filename}",
		HTMLMessageUploadTo: "emails/messages/body/{yyyy}/{mm}/{filename}",
	})
	return f
}

func readMIME(t *testing.T, raw []byte) (*gomail.Reader, map[string]string) {
	t.Helper()
	r, err := gomail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	parts := make(map[string]string)
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		switch h := p.Header.(type) {
		case *gomail.InlineHeader:
			ct, _, _ := h.ContentType()
			parts[ct] = string(body)
		case *gomail.AttachmentHeader:
			name, _ := h.Filename()
			parts[name] = string(body)
		}
	}
	return r, parts
}

func TestCreateMinimal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.svc.CreateWithObjects(ctx, message.Draft{
		To:      []string{"user@example.com"},
		Subject: "Subject",
	})
	require.NoError(t, err)
	assert.Equal(t, "webmaster@localhost", m.FromEmail)
	assert.Empty(t, m.HTMLPath)

	n, err := f.svc.Send(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, f.outbox.sent, 1)
	out := f.outbox.sent[0]
	assert.Equal(t, []string{"user@example.com"}, out.Recipients)
	assert.Equal(t, "webmaster@localhost", out.From)
	assert.Equal(t, m.ID, out.ID)

	r, parts := readMIME(t, out.Raw)
	subject, _ := r.Header.Subject()
	assert.Equal(t, "Subject", subject)
	assert.Equal(t, "", parts["text/plain"])

	stored, err := f.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.SentAt)
	assert.Equal(t, "provider-1", stored.ProviderMessageID)
}

func TestCreateWithObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	att, err := f.svc.CreateAttachment(ctx, "doc.pdf", "application/pdf", strings.NewReader("..."))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(att.Path, "emails/attachments/"))
	assert.Equal(t, int64(3), att.Size)

	m, err := f.svc.CreateWithObjects(ctx, message.Draft{
		To:            []string{"user@example.com"},
		Cc:            []string{"cc@example.com"},
		Bcc:           []string{"bcc@example.com"},
		Subject:       "Subject",
		Body:          "Hi User,...",
		HTMLMessage:   "<p>Hi User...",
		FromEmail:     "no-reply@example.com",
		ReplyTo:       []string{"Example Team <support@example.com>"},
		AttachmentIDs: []string{att.ID},
		CreatedBy:     "user1",
	})
	require.NoError(t, err)

	assert.Equal(t, "no-reply@example.com", m.FromEmail)
	assert.Equal(t, "Hi User,...", m.Body)
	assert.Equal(t, []string{"Example Team <support@example.com>"}, m.ReplyTo)
	assert.Equal(t, "user1", m.CreatedBy)
	assert.True(t, strings.HasPrefix(m.HTMLPath, "emails/messages/body"))
	assert.Equal(t, []string{"user@example.com"}, m.Addresses(domain.RecipientTo))
	assert.Equal(t, []string{"cc@example.com"}, m.Addresses(domain.RecipientCc))
	assert.Equal(t, []string{"bcc@example.com"}, m.Addresses(domain.RecipientBcc))
	require.Len(t, m.Attachments, 1)

	rc, err := f.blobs.Open(ctx, m.HTMLPath)
	require.NoError(t, err)
	html, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "<p>Hi User...", string(html))

	n, err := f.svc.Send(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := f.outbox.sent[0]
	assert.Equal(t, "no-reply@example.com", out.From)
	assert.Equal(t, []string{"user@example.com", "cc@example.com", "bcc@example.com"}, out.Recipients)
	assert.NotContains(t, string(out.Raw), "bcc@example.com")

	r, parts := readMIME(t, out.Raw)
	replyTo, err := r.Header.AddressList("Reply-To")
	require.NoError(t, err)
	require.Len(t, replyTo, 1)
	assert.Equal(t, "support@example.com", replyTo[0].Address)
	assert.Equal(t, "Hi User,...", parts["text/plain"])
	assert.Equal(t, "<p>Hi User...", parts["text/html"])
	assert.Equal(t, "...", parts["doc.pdf"])
	assert.Equal(t, m.ID, r.Header.Get("X-Mailtrack-ID"))
}

func TestCreateDerivesBodyFromHTML(t *testing.T) {
	f := newFixture(t)
	m, err := f.svc.CreateWithObjects(context.Background(), message.Draft{
		To:          []string{"user@example.com"},
		HTMLMessage: "<h1>Welcome</h1><p>Hi User</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "Welcome\nHi User", m.Body)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateWithObjects(ctx, message.Draft{Subject: "x"})
	assert.ErrorIs(t, err, message.ErrNoRecipients)

	_, err = f.svc.CreateWithObjects(ctx, message.Draft{To: []string{"not-an-address"}})
	assert.ErrorIs(t, err, message.ErrInvalidAddress)

	_, err = f.svc.CreateWithObjects(ctx, message.Draft{To: []string{"a@example.com"}, ReplyTo: []string{"<<"}})
	assert.ErrorIs(t, err, message.ErrInvalidAddress)

	_, err = f.svc.CreateWithObjects(ctx, message.Draft{To: []string{"a@example.com"}, AttachmentIDs: []string{"missing"}})
	assert.ErrorIs(t, err, message.ErrAttachmentNotFound)
}

func TestCreateRemovesHTMLWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errors.New("db down")

	_, err := f.svc.CreateWithObjects(context.Background(), message.Draft{
		To:          []string{"a@example.com"},
		HTMLMessage: "<p>x</p>",
	})
	require.Error(t, err)
	assert.Empty(t, f.repo.messages)
}

func TestCreateAttachmentGuessesMIMEType(t *testing.T) {
	f := newFixture(t)
	a, err := f.svc.CreateAttachment(context.Background(), "notes.txt", "", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(a.MIMEType, "text/plain"))

	_, err = f.svc.CreateAttachment(context.Background(), " ", "", strings.NewReader("x"))
	assert.ErrorIs(t, err, message.ErrMissingFilename)
}

func TestCreateAttachmentSameNameKeepsBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateAttachment(ctx, "doc.pdf", "application/pdf", strings.NewReader("FIRST"))
	require.NoError(t, err)
	second, err := f.svc.CreateAttachment(ctx, "doc.pdf", "application/pdf", strings.NewReader("SECOND"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.Equal(t, "doc.pdf", first.Filename)
	assert.Equal(t, "doc.pdf", second.Filename)

	for want, a := range map[string]*domain.Attachment{"FIRST": first, "SECOND": second} {
		rc, err := f.blobs.Open(ctx, a.Path)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
}

func TestSendTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.svc.CreateWithObjects(ctx, message.Draft{To: []string{"a@example.com"}})
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, m.ID)
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, m.ID)
	assert.ErrorIs(t, err, message.ErrAlreadySent)
	assert.Len(t, f.outbox.sent, 1)
}

func TestSendFailureLeavesMessageUnsent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.svc.CreateWithObjects(ctx, message.Draft{To: []string{"a@example.com"}})
	require.NoError(t, err)

	f.outbox.err = errors.New("connection refused")
	_, err = f.svc.Send(ctx, m.ID)
	assert.ErrorContains(t, err, "connection refused")

	stored, err := f.svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.SentAt)
}

func TestSendUnknownMessage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), "nope")
	assert.ErrorIs(t, err, message.ErrNotFound)
}
