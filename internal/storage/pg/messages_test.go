package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Database{DB: db}, mock
}

func TestInsertMessageIfNotExistsReturnsInsertedOnNewRow(t *testing.T) {
	d, mock := newMockDatabase(t)
	msg := &model.Message{
		Source: "telegram", ConversationID: "conv-1", ExternalMessageID: "100",
		Direction: model.DirectionInbound, ContentType: model.ContentTypeText,
		Body: "hi", SentAt: time.Now(), Status: "synced",
	}

	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-1"))

	id, inserted, err := d.InsertMessageIfNotExists(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inserted || id != "msg-1" {
		t.Fatalf("expected inserted=true id=msg-1, got inserted=%v id=%q", inserted, id)
	}
}

func TestInsertMessageIfNotExistsIsIdempotentOnNaturalKeyConflict(t *testing.T) {
	d, mock := newMockDatabase(t)
	msg := &model.Message{
		Source: "telegram", ConversationID: "conv-1", ExternalMessageID: "100",
		Direction: model.DirectionInbound, ContentType: model.ContentTypeText,
		Body: "hi", SentAt: time.Now(), Status: "synced",
	}

	// ON CONFLICT DO NOTHING ... RETURNING id yields no row on a duplicate.
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	id, inserted, err := d.InsertMessageIfNotExists(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted || id != "" {
		t.Fatalf("expected a no-op on conflict, got inserted=%v id=%q", inserted, id)
	}
}

func TestUpdateMessageOnEditTouchesOnlyBodyAndMetadata(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectExec("UPDATE messages SET body").
		WithArgs("telegram", "conv-1", "100", "edited body", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.UpdateMessageOnEdit(context.Background(), "telegram", "conv-1", "100", "edited body", model.MessageMetadata{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
