package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/textdispatch/internal/domain"
)

var copyPattern = regexp.QuoteMeta(`COPY "send_results" ("id", "batch_id", "row_index", "phone", "variant", "message", "fields", "ok", "status", "service", "likely_landline", "error", "sent_at") FROM STDIN`)

func results() []domain.SendResult {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []domain.SendResult{
		{Index: 0, Phone: "+15551110001", Variant: domain.VariantA, Message: "Hi Alex", Fields: map[string]string{"name": "Alex"}, OK: true, Status: domain.StatusDelivered, Service: "IMESSAGE", SentAt: &at},
		{Index: 1, Phone: "", Variant: domain.VariantA, OK: false, Status: domain.StatusSkipped, Error: domain.MissingPhoneError},
	}
}

func TestSendResultRepo_SaveResults(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rs := results()
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(copyPattern)
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "batch-1", 0, "+15551110001", "A", "Hi Alex", `{"name":"Alex"}`, true, "DELIVERED", "IMESSAGE", false, "", *rs[0].SentAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(sqlmock.AnyArg(), "batch-1", 1, "", "A", "", "{}", false, "SKIPPED", "", false, "Missing phone", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, NewSendResultRepo(db).SaveResults(context.Background(), "batch-1", rs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendResultRepo_SaveResultsRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(copyPattern)
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = NewSendResultRepo(db).SaveResults(context.Background(), "batch-1", results())
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendResultRepo_SaveResultsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewSendResultRepo(db).SaveResults(context.Background(), "batch-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendResultRepo_ListByBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cols := []string{"row_index", "phone", "variant", "message", "fields", "ok", "status", "service", "likely_landline", "error", "sent_at"}
	mock.ExpectQuery(`SELECT row_index, phone, variant, message, fields, ok, status`).
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(0, "+15551110001", "B", "Hi Alex", []byte(`{"name":"Alex"}`), true, "SENT", "SMS", false, "", at).
			AddRow(1, "+15551110002", "A", "Hi Blair", []byte(`{}`), false, "FAILED", "SMS", true, "message.error > 0", nil))

	got, err := NewSendResultRepo(db).ListByBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.VariantB, got[0].Variant)
	assert.Equal(t, "Alex", got[0].Field("name"))
	require.NotNil(t, got[0].SentAt)
	assert.True(t, at.Equal(*got[0].SentAt))
	assert.True(t, got[1].LikelyLandline)
	assert.Equal(t, domain.StatusFailed, got[1].Status)
	assert.Nil(t, got[1].SentAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendResultRepo_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS send_results`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, NewSendResultRepo(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
