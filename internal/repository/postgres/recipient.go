package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/service/delivery"
)

// RecipientRepo implements delivery.Repository against PostgreSQL.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

// UpdateRecipients locks the message's recipient rows in a stable order,
// applies the update to the matching ones and commits. Concurrent events for
// the same message are serialized by the row locks.
func (r *RecipientRepo) UpdateRecipients(ctx context.Context, messageID, address string, apply func(*domain.Recipient)) ([]domain.Recipient, error) {
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, delivery.ErrMessageNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin recipient update: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM mailtrack_messages WHERE id = $1)`, messageID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check message: %w", err)
	}
	if !exists {
		return nil, delivery.ErrMessageNotFound
	}

	all, err := lockRecipients(ctx, tx, messageID)
	if err != nil {
		return nil, err
	}

	matched := selectRecipients(all, address)
	if len(matched) == 0 {
		return nil, delivery.ErrRecipientNotFound
	}

	out := make([]domain.Recipient, 0, len(matched))
	for _, rec := range matched {
		apply(&rec)
		if _, err := tx.ExecContext(ctx, `
			UPDATE mailtrack_recipients
			SET address = $2, status = $3, "timestamp" = $4,
			    clicks_count = $5, opens_count = $6, last_event = $7
			WHERE id = $1
		`, rec.ID, rec.Address, string(rec.Status), rec.Timestamp,
			rec.ClicksCount, rec.OpensCount, nullJSON(rec.LastEvent),
		); err != nil {
			return nil, fmt.Errorf("update recipient %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit recipient update: %w", err)
	}
	return out, nil
}

func lockRecipients(ctx context.Context, tx *sql.Tx, messageID string) ([]domain.Recipient, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, message_id, kind, address, status, "timestamp",
		       clicks_count, opens_count, last_event
		FROM mailtrack_recipients
		WHERE message_id = $1
		ORDER BY position, id
		FOR UPDATE
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("lock recipients: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock recipients: %w", err)
	}
	return out, nil
}

// selectRecipients picks the rows an event addresses. An address can appear
// more than once (to and cc); every copy is updated. An event without an
// address only applies to single-recipient messages.
func selectRecipients(all []domain.Recipient, address string) []domain.Recipient {
	if address == "" {
		if len(all) == 1 {
			return all
		}
		return nil
	}
	var out []domain.Recipient
	for _, rec := range all {
		if rec.MatchesAddress(address) {
			out = append(out, rec)
		}
	}
	return out
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecipient(s rowScanner) (domain.Recipient, error) {
	var (
		rec       domain.Recipient
		kind      string
		status    string
		ts        sql.NullTime
		lastEvent []byte
	)
	if err := s.Scan(&rec.ID, &rec.MessageID, &kind, &rec.Address, &status, &ts,
		&rec.ClicksCount, &rec.OpensCount, &lastEvent); err != nil {
		return rec, fmt.Errorf("scan recipient: %w", err)
	}
	rec.Kind = domain.RecipientKind(kind)
	rec.Status = domain.EventType(status)
	if ts.Valid {
		t := ts.Time.UTC()
		rec.Timestamp = &t
	}
	if len(lastEvent) > 0 {
		rec.LastEvent = append([]byte(nil), lastEvent...)
	}
	return rec, nil
}

// nullJSON passes JSON to a jsonb column as text so lib/pq does not encode
// it as bytea.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
