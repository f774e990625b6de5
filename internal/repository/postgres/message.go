package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/service/message"
)

// MessageRepo implements message.Repository against PostgreSQL.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message, attachmentIDs []string) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create message: %w", err)
	}
	defer tx.Rollback()

	replyTo := m.ReplyTo
	if replyTo == nil {
		replyTo = []string{}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO mailtrack_messages (id, from_email, subject, body, html_message, reply_to, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.FromEmail, m.Subject, m.Body, m.HTMLPath, pq.Array(replyTo), m.CreatedBy, m.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for i := range m.Recipients {
		rec := &m.Recipients[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		rec.MessageID = m.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mailtrack_recipients (id, message_id, position, kind, address)
			VALUES ($1, $2, $3, $4, $5)
		`, rec.ID, m.ID, i, string(rec.Kind), rec.Address); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	for i, id := range attachmentIDs {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: %s", message.ErrAttachmentNotFound, id)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO mailtrack_message_attachments (message_id, attachment_id, position)
			SELECT $1, id, $3 FROM mailtrack_attachments WHERE id = $2
		`, m.ID, id, i)
		if err != nil {
			return fmt.Errorf("link attachment: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", message.ErrAttachmentNotFound, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create message: %w", err)
	}
	return nil
}

func (r *MessageRepo) Get(ctx context.Context, id string) (*domain.Message, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, message.ErrNotFound
	}

	m := &domain.Message{}
	var (
		replyTo []string
		sentAt  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, from_email, subject, body, html_message, reply_to,
		       created_by, provider_message_id, created_at, sent_at
		FROM mailtrack_messages
		WHERE id = $1
	`, id).Scan(
		&m.ID, &m.FromEmail, &m.Subject, &m.Body, &m.HTMLPath, pq.Array(&replyTo),
		&m.CreatedBy, &m.ProviderMessageID, &m.CreatedAt, &sentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, message.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if len(replyTo) > 0 {
		m.ReplyTo = replyTo
	}
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		m.SentAt = &t
	}

	if m.Recipients, err = r.recipients(ctx, id); err != nil {
		return nil, err
	}
	if m.Attachments, err = r.attachments(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) recipients(ctx context.Context, messageID string) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, kind, address, status, "timestamp",
		       clicks_count, opens_count, last_event
		FROM mailtrack_recipients
		WHERE message_id = $1
		ORDER BY position, id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *MessageRepo) attachments(ctx context.Context, messageID string) ([]domain.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.filename, a.mimetype, a.file, a.size, a.created_at
		FROM mailtrack_attachments a
		JOIN mailtrack_message_attachments ma ON ma.attachment_id = a.id
		WHERE ma.message_id = $1
		ORDER BY ma.position
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.Filename, &a.MIMEType, &a.Path, &a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *MessageRepo) MarkSent(ctx context.Context, id, providerMessageID string, sentAt time.Time) error {
	if _, err := uuid.Parse(id); err != nil {
		return message.ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailtrack_messages SET sent_at = $2, provider_message_id = $3
		WHERE id = $1 AND sent_at IS NULL
	`, id, sentAt, providerMessageID)
	if err != nil {
		return fmt.Errorf("mark message sent: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM mailtrack_messages WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if !exists {
		return message.ErrNotFound
	}
	return message.ErrAlreadySent
}

func (r *MessageRepo) CreateAttachment(ctx context.Context, a *domain.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mailtrack_attachments (id, filename, mimetype, file, size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Filename, a.MIMEType, a.Path, a.Size, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}
