package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// RecipientKind is the header role of a recipient on a message.
type RecipientKind string

const (
	RecipientTo  RecipientKind = "to"
	RecipientCc  RecipientKind = "cc"
	RecipientBcc RecipientKind = "bcc"
)

// Message is a stored outbound email. HTMLPath points at the HTML body in
// blob storage; Body is the plain-text alternative.
type Message struct {
	ID                string       `json:"id" db:"id"`
	FromEmail         string       `json:"from_email" db:"from_email"`
	Subject           string       `json:"subject" db:"subject"`
	Body              string       `json:"body" db:"body"`
	HTMLPath          string       `json:"html_path,omitempty" db:"html_message"`
	ReplyTo           []string     `json:"reply_to,omitempty" db:"reply_to"`
	CreatedBy         string       `json:"created_by,omitempty" db:"created_by"`
	ProviderMessageID string       `json:"provider_message_id,omitempty" db:"provider_message_id"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
	SentAt            *time.Time   `json:"sent_at,omitempty" db:"sent_at"`
	Recipients        []Recipient  `json:"recipients,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
}

// Addresses returns the addresses of every recipient of the given kind, in
// creation order.
func (m Message) Addresses(kind RecipientKind) []string {
	var out []string
	for _, r := range m.Recipients {
		if r.Kind == kind {
			out = append(out, r.Address)
		}
	}
	return out
}

// Recipient is the per-address delivery record of a message. Status and
// Timestamp move only through the delivery reconciler; the counters only grow.
type Recipient struct {
	ID          string          `json:"id" db:"id"`
	MessageID   string          `json:"message_id" db:"message_id"`
	Kind        RecipientKind   `json:"kind" db:"kind"`
	Address     string          `json:"address" db:"address"`
	Status      EventType       `json:"status" db:"status"`
	Timestamp   *time.Time      `json:"timestamp,omitempty" db:"timestamp"`
	ClicksCount int             `json:"clicks_count" db:"clicks_count"`
	OpensCount  int             `json:"opens_count" db:"opens_count"`
	LastEvent   json.RawMessage `json:"last_event,omitempty" db:"last_event"`
}

// MatchesAddress compares addresses the way mailbox providers do for
// routing: case-insensitively and ignoring surrounding whitespace.
func (r Recipient) MatchesAddress(address string) bool {
	return strings.EqualFold(strings.TrimSpace(r.Address), strings.TrimSpace(address))
}

// Attachment is a file stored in blob storage and linked to messages.
type Attachment struct {
	ID        string    `json:"id" db:"id"`
	Filename  string    `json:"filename" db:"filename"`
	MIMEType  string    `json:"mimetype" db:"mimetype"`
	Path      string    `json:"path" db:"file"`
	Size      int64     `json:"size" db:"size"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
