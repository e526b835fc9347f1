package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var outgoingRowColumns = []string{
	"id", "conversation_id", "text", "reply_to_external",
	"attachment_kind", "attachment_storage_key", "attachment_caption", "attachment_mime", "attachment_name",
	"status", "scheduled_for", "locked_by", "locked_at",
	"retry_count", "max_retries", "error_message", "sent_message_id", "sent_at", "created_at",
}

// TestClaimNextOutgoingMessageClaimsWithinOneTransaction exercises the
// exclusive-claim property (§8 testable property 9): the select and the
// status flip to 'sending' happen inside the same transaction, which is
// what makes FOR UPDATE SKIP LOCKED safe against a second concurrent
// sender claiming the same row.
func TestClaimNextOutgoingMessageClaimsWithinOneTransaction(t *testing.T) {
	d, mock := newMockDatabase(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM outgoing_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("out-1"))
	mock.ExpectQuery("UPDATE outgoing_messages SET status = 'sending'").
		WithArgs("out-1", "worker-a").
		WillReturnRows(sqlmock.NewRows(outgoingRowColumns).AddRow(
			"out-1", "conv-1", "hello", nil,
			nil, nil, nil, nil, nil,
			"sending", nil, "worker-a", now,
			0, 5, nil, nil, nil, now,
		))
	mock.ExpectCommit()

	msg, err := d.ClaimNextOutgoingMessage(context.Background(), "worker-a", 60*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "out-1" || msg.Status != "sending" {
		t.Fatalf("unexpected claimed row: %+v", msg)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimNextOutgoingMessageReturnsErrNotFoundWhenQueueEmpty(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM outgoing_messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := d.ClaimNextOutgoingMessage(context.Background(), "worker-a", 60*time.Second)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkOutgoingFailureTruncatesLongErrorMessages(t *testing.T) {
	d, mock := newMockDatabase(t)
	longErr := errors.New(string(make([]byte, 600)))

	mock.ExpectExec("UPDATE outgoing_messages SET").
		WithArgs("out-1", string(make([]byte, 500))).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := d.MarkOutgoingFailure(context.Background(), "out-1", longErr); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
