package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/service/delivery"
)

var recipientColumns = []string{
	"id", "message_id", "kind", "address", "status", "timestamp",
	"clicks_count", "opens_count", "last_event",
}

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func expectMessageExists(mock sqlmock.Sqlmock, id string, exists bool) {
	mock.ExpectQuery("SELECT EXISTS").WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func markDelivered(at time.Time) func(*domain.Recipient) {
	return func(r *domain.Recipient) {
		r.Status = domain.EventDelivered
		r.Timestamp = &at
	}
}

func TestUpdateRecipientsMatchesAddress(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	msgID := uuid.New().String()
	at := time.Unix(1, 0).UTC()

	mock.ExpectBegin()
	expectMessageExists(mock, msgID, true)
	mock.ExpectQuery("FROM mailtrack_recipients").WithArgs(msgID).
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow("r1", msgID, "to", "test@example.com", "", nil, 0, 0, nil).
			AddRow("r2", msgID, "cc", "other@example.com", "", nil, 0, 0, nil))
	mock.ExpectExec("UPDATE mailtrack_recipients").
		WithArgs("r1", "test@example.com", "delivered", at, 0, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.UpdateRecipients(context.Background(), msgID, " TEST@example.com", markDelivered(at))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
	assert.Equal(t, domain.EventDelivered, got[0].Status)
	assert.Equal(t, domain.RecipientTo, got[0].Kind)
}

func TestUpdateRecipientsSoleRecipientWithoutAddress(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	msgID := uuid.New().String()
	prev := time.Unix(5, 0).UTC()

	mock.ExpectBegin()
	expectMessageExists(mock, msgID, true)
	mock.ExpectQuery("FROM mailtrack_recipients").WithArgs(msgID).
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow("r1", msgID, "to", "only@example.com", "queued", prev, 2, 3, []byte(`{"event":"processed"}`)))
	mock.ExpectExec("UPDATE mailtrack_recipients").
		WithArgs("r1", "only@example.com", "queued", prev, 2, 4, `{"event":"processed"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.UpdateRecipients(context.Background(), msgID, "", func(r *domain.Recipient) {
		r.OpensCount++
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].OpensCount)
	require.NotNil(t, got[0].Timestamp)
	assert.True(t, prev.Equal(*got[0].Timestamp))
	assert.JSONEq(t, `{"event":"processed"}`, string(got[0].LastEvent))
}

func TestUpdateRecipientsNoAddressManyRecipients(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	msgID := uuid.New().String()

	mock.ExpectBegin()
	expectMessageExists(mock, msgID, true)
	mock.ExpectQuery("FROM mailtrack_recipients").WithArgs(msgID).
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow("r1", msgID, "to", "a@example.com", "", nil, 0, 0, nil).
			AddRow("r2", msgID, "to", "b@example.com", "", nil, 0, 0, nil))
	mock.ExpectRollback()

	_, err := repo.UpdateRecipients(context.Background(), msgID, "", markDelivered(time.Now()))
	assert.ErrorIs(t, err, delivery.ErrRecipientNotFound)
}

func TestUpdateRecipientsDuplicateAddress(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	msgID := uuid.New().String()
	at := time.Unix(2, 0).UTC()

	mock.ExpectBegin()
	expectMessageExists(mock, msgID, true)
	mock.ExpectQuery("FROM mailtrack_recipients").WithArgs(msgID).
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow("r1", msgID, "to", "dup@example.com", "", nil, 0, 0, nil).
			AddRow("r2", msgID, "cc", "dup@example.com", "", nil, 0, 0, nil))
	mock.ExpectExec("UPDATE mailtrack_recipients").WithArgs("r1", sqlmock.AnyArg(), "delivered", at, 0, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE mailtrack_recipients").WithArgs("r2", sqlmock.AnyArg(), "delivered", at, 0, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.UpdateRecipients(context.Background(), msgID, "dup@example.com", markDelivered(at))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestUpdateRecipientsUnknownMessage(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	msgID := uuid.New().String()

	mock.ExpectBegin()
	expectMessageExists(mock, msgID, false)
	mock.ExpectRollback()

	_, err := repo.UpdateRecipients(context.Background(), msgID, "a@example.com", markDelivered(time.Now()))
	assert.ErrorIs(t, err, delivery.ErrMessageNotFound)
}

func TestUpdateRecipientsMalformedID(t *testing.T) {
	db, _ := setupTestDB(t)
	repo := NewRecipientRepo(db)

	_, err := repo.UpdateRecipients(context.Background(), "42", "a@example.com", markDelivered(time.Now()))
	assert.ErrorIs(t, err, delivery.ErrMessageNotFound)
}

func TestUpdateRecipientsUnmatchedAddress(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	msgID := uuid.New().String()

	mock.ExpectBegin()
	expectMessageExists(mock, msgID, true)
	mock.ExpectQuery("FROM mailtrack_recipients").WithArgs(msgID).
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow("r1", msgID, "to", "a@example.com", "", nil, 0, 0, nil))
	mock.ExpectRollback()

	_, err := repo.UpdateRecipients(context.Background(), msgID, "stranger@example.com", markDelivered(time.Now()))
	assert.ErrorIs(t, err, delivery.ErrRecipientNotFound)
}

func TestUpdateRecipientsUpdateFails(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewRecipientRepo(db)
	msgID := uuid.New().String()

	mock.ExpectBegin()
	expectMessageExists(mock, msgID, true)
	mock.ExpectQuery("FROM mailtrack_recipients").WithArgs(msgID).
		WillReturnRows(sqlmock.NewRows(recipientColumns).
			AddRow("r1", msgID, "to", "a@example.com", "", nil, 0, 0, nil))
	mock.ExpectExec("UPDATE mailtrack_recipients").WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := repo.UpdateRecipients(context.Background(), msgID, "a@example.com", markDelivered(time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.False(t, errors.Is(err, delivery.ErrRecipientNotFound))
}

func TestSelectRecipients(t *testing.T) {
	one := []domain.Recipient{{ID: "1", Address: "a@example.com"}}
	two := append(one, domain.Recipient{ID: "2", Address: "b@example.com"})

	assert.Len(t, selectRecipients(one, ""), 1)
	assert.Empty(t, selectRecipients(two, ""))
	assert.Empty(t, selectRecipients(nil, ""))
	assert.Equal(t, "2", selectRecipients(two, "B@EXAMPLE.COM")[0].ID)
}
