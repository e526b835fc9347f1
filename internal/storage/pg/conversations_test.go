package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

var conversationRowColumns = []string{
	"id", "source", "external_chat_id", "title", "kind", "sync_disabled",
	"last_synced_message_id", "last_synced_at", "last_message_at", "unread_count",
	"last_read_message_id", "last_read_at", "created_at", "updated_at",
}

func TestGetConversationByExternalChatIDReturnsErrNotFound(t *testing.T) {
	d, mock := newMockDatabase(t)
	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs("telegram", "chat-1").
		WillReturnRows(sqlmock.NewRows(conversationRowColumns))

	_, err := d.GetConversationByExternalChatID(context.Background(), "telegram", "chat-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetConversationByExternalChatIDScansRow(t *testing.T) {
	d, mock := newMockDatabase(t)
	now := time.Now()
	rows := sqlmock.NewRows(conversationRowColumns).AddRow(
		"conv-1", "telegram", "chat-1", "Alice", model.ConversationPrivate, false,
		"42", now, now, 3, "40", now, now, now,
	)
	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs("telegram", "chat-1").
		WillReturnRows(rows)

	conv, err := d.GetConversationByExternalChatID(context.Background(), "telegram", "chat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID != "conv-1" || conv.UnreadCount != 3 {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
}

func TestApplyInboundInsertUpdateIncrementsUnreadOnlyForInbound(t *testing.T) {
	d, mock := newMockDatabase(t)
	sentAt := time.Now()

	mock.ExpectExec("UPDATE conversations SET").
		WithArgs("conv-1", sentAt, "55", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.ApplyInboundInsertUpdate(context.Background(), "conv-1", "55", sentAt, model.DirectionInbound)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyInboundInsertUpdateDoesNotIncrementUnreadForOutbound(t *testing.T) {
	d, mock := newMockDatabase(t)
	sentAt := time.Now()

	mock.ExpectExec("UPDATE conversations SET").
		WithArgs("conv-1", sentAt, "55", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.ApplyInboundInsertUpdate(context.Background(), "conv-1", "55", sentAt, model.DirectionOutbound)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplyReadAckIsGatedOnNewerID(t *testing.T) {
	d, mock := newMockDatabase(t)

	mock.ExpectExec("UPDATE conversations SET .* WHERE id = \\$1 AND \\$2::bigint > COALESCE\\(NULLIF\\(last_read_message_id, ''\\)::bigint, 0\\)").
		WithArgs("conv-1", "60").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.ApplyReadAck(context.Background(), "conv-1", "60")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
