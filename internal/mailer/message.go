package mailer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
)

// Attachment is a file to attach to an Email.
type Attachment struct {
	Filename string
	MIMEType string
	Content  io.Reader
}

// Email is a fully resolved outbound message.
type Email struct {
	// ID is the correlation id providers echo back on webhooks.
	ID          string
	From        string
	To          []string
	Cc          []string
	Bcc         []string
	ReplyTo     []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
	Date        time.Time
}

// Envelope returns the SMTP envelope recipients: To, Cc then Bcc.
func (e *Email) Envelope() []string {
	out := make([]string, 0, len(e.To)+len(e.Cc)+len(e.Bcc))
	for _, list := range [][]string{e.To, e.Cc, e.Bcc} {
		for _, a := range list {
			if addr, err := mail.ParseAddress(a); err == nil {
				out = append(out, addr.Address)
			} else {
				out = append(out, strings.TrimSpace(a))
			}
		}
	}
	return out
}

// Builder renders Emails. MetadataKey names the provider metadata field that
// carries the correlation id.
type Builder struct {
	MetadataKey string
}

// NewBuilder creates a builder using metadataKey for provider metadata.
func NewBuilder(metadataKey string) *Builder {
	return &Builder{MetadataKey: metadataKey}
}

// Build renders e. Without HTML or attachments the result is a single
// text/plain part; otherwise a multipart/mixed message whose first part is
// multipart/alternative.
func (b *Builder) Build(e *Email) ([]byte, error) {
	h, err := b.header(e)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if e.HTML == "" && len(e.Attachments) == 0 {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("create message: %w", err)
		}
		if _, err := io.WriteString(w, e.Text); err != nil {
			return nil, fmt.Errorf("write body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close message: %w", err)
		}
		return buf.Bytes(), nil
	}

	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if err := writeAlternatives(mw, e); err != nil {
		return nil, err
	}
	for _, a := range e.Attachments {
		if err := writeAttachment(mw, a); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close message: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) header(e *Email) (mail.Header, error) {
	var h mail.Header

	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return h, fmt.Errorf("parse from %q: %w", e.From, err)
	}
	h.SetAddressList("From", []*mail.Address{from})

	for _, field := range []struct {
		name  string
		addrs []string
	}{{"To", e.To}, {"Cc", e.Cc}, {"Reply-To", e.ReplyTo}} {
		if len(field.addrs) == 0 {
			continue
		}
		list, err := parseAddresses(field.addrs)
		if err != nil {
			return h, fmt.Errorf("parse %s: %w", field.name, err)
		}
		h.SetAddressList(field.name, list)
	}

	date := e.Date
	if date.IsZero() {
		date = time.Now()
	}
	h.SetDate(date)
	h.SetSubject(e.Subject)
	h.SetMessageID(fmt.Sprintf("%s@%s", e.ID, hostOf(from.Address)))

	if e.ID != "" {
		if err := b.setTrackingHeaders(&h, e.ID); err != nil {
			return h, err
		}
	}
	return h, nil
}

func (b *Builder) setTrackingHeaders(h *mail.Header, id string) error {
	meta := map[string]string{b.MetadataKey: id}

	sendgrid, err := json.Marshal(map[string]any{"unique_args": meta})
	if err != nil {
		return fmt.Errorf("encode X-SMTPAPI: %w", err)
	}
	mailgun, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode X-Mailgun-Variables: %w", err)
	}
	sparkpost, err := json.Marshal(map[string]any{"metadata": meta})
	if err != nil {
		return fmt.Errorf("encode X-MSYS-API: %w", err)
	}

	h.Set("X-Mailtrack-ID", id)
	h.Set("X-SMTPAPI", string(sendgrid))
	h.Set("X-Mailgun-Variables", string(mailgun))
	h.Set("X-MSYS-API", string(sparkpost))
	h.Set("X-SES-MESSAGE-TAGS", b.MetadataKey+"="+id)
	return nil
}

func writeAlternatives(mw *mail.Writer, e *Email) error {
	iw, err := mw.CreateInline()
	if err != nil {
		return fmt.Errorf("create alternative part: %w", err)
	}

	parts := []struct{ contentType, body string }{{"text/plain", e.Text}}
	if e.HTML != "" {
		parts = append(parts, struct{ contentType, body string }{"text/html", e.HTML})
	}
	for _, p := range parts {
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		ph.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := iw.CreatePart(ph)
		if err != nil {
			return fmt.Errorf("create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return fmt.Errorf("write %s part: %w", p.contentType, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("close %s part: %w", p.contentType, err)
		}
	}
	if err := iw.Close(); err != nil {
		return fmt.Errorf("close alternative part: %w", err)
	}
	return nil
}

func writeAttachment(mw *mail.Writer, a Attachment) error {
	var ah mail.AttachmentHeader
	mimeType := a.MIMEType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	ah.SetContentType(mimeType, nil)
	ah.SetFilename(a.Filename)
	ah.Set("Content-Transfer-Encoding", "base64")

	w, err := mw.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("create attachment %s: %w", a.Filename, err)
	}
	if _, err := io.Copy(w, a.Content); err != nil {
		return fmt.Errorf("write attachment %s: %w", a.Filename, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close attachment %s: %w", a.Filename, err)
	}
	return nil
}

func parseAddresses(in []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(in))
	for _, s := range in {
		addr, err := mail.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func hostOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
