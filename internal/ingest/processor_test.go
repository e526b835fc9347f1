package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

var conversationRowColumns = []string{
	"id", "source", "external_chat_id", "title", "kind", "sync_disabled",
	"last_synced_message_id", "last_synced_at", "last_message_at", "unread_count",
	"last_read_message_id", "last_read_at", "created_at", "updated_at",
}

func newTestProcessor(t *testing.T) (*Processor, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db := &pg.Database{DB: sqlDB}
	return NewProcessor(db, NewRouter(10, 100, 50, testLogger()), nil, testLogger()), mock
}

func conversationRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(conversationRowColumns).AddRow(
		"conv-1", "telegram", "chat-1", "", model.ConversationPrivate, false,
		"", nil, nil, 0, "", nil, now, now,
	)
}

// TestProcessSkipsAutoCreateForCatchupDescriptors checks §4.D's rule that
// only realtime events (AutoCreate=true) may create a conversation a
// catch-up producer observes for a chat Discovery hasn't seeded yet.
func TestProcessSkipsAutoCreateForCatchupDescriptors(t *testing.T) {
	p, mock := newTestProcessor(t)

	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs(Source, "chat-1").
		WillReturnRows(sqlmock.NewRows(conversationRowColumns))

	desc := model.MessageDescriptor{
		SourceTag: "active_poll", ExternalChatID: "chat-1", ExternalMessageID: "1",
		Direction: model.DirectionInbound, SentAt: time.Now(), AutoCreate: false,
	}
	if err := p.process(context.Background(), desc); err != nil {
		t.Fatalf("expected a skip, not an error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestProcessInsertsNewMessageAndAdvancesConversation covers the happy
// path of §4.D steps 4-5: a fresh message lands, the conversation
// checkpoint advances and unread_count increments for an inbound message.
func TestProcessInsertsNewMessageAndAdvancesConversation(t *testing.T) {
	p, mock := newTestProcessor(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs(Source, "chat-1").
		WillReturnRows(conversationRow(now))
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-1"))
	mock.ExpectExec("UPDATE conversations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	desc := model.MessageDescriptor{
		SourceTag: "event_new", ExternalChatID: "chat-1", ExternalMessageID: "1",
		Direction: model.DirectionInbound, SentAt: now, AutoCreate: true,
	}
	if err := p.process(context.Background(), desc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestProcessIsANoOpOnNaturalKeyConflict is the idempotent-reingest
// property (§8 testable property 2): a second producer observing the same
// message must not advance the conversation checkpoint a second time.
func TestProcessIsANoOpOnNaturalKeyConflict(t *testing.T) {
	p, mock := newTestProcessor(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs(Source, "chat-1").
		WillReturnRows(conversationRow(now))
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	desc := model.MessageDescriptor{
		SourceTag: "event_new", ExternalChatID: "chat-1", ExternalMessageID: "1",
		Direction: model.DirectionInbound, SentAt: now, AutoCreate: true,
	}
	if err := p.process(context.Background(), desc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// No UPDATE conversations expectation was registered; ExpectationsWereMet
	// would fail below if the checkpoint update ran anyway.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations (checkpoint must not advance twice): %v", err)
	}
}

// TestProcessEditRestrictsUpdateToBodyAndMetadata is the edit-preserves-
// unread property (§8 testable property 7): editing a message this store
// already holds must never touch the conversation row's unread_count.
func TestProcessEditRestrictsUpdateToBodyAndMetadata(t *testing.T) {
	p, mock := newTestProcessor(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs(Source, "chat-1").
		WillReturnRows(conversationRow(now))
	// The insert attempt conflicts on the natural key: this message was
	// already materialized, so the edit path updates body/metadata only.
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("UPDATE messages SET body").
		WillReturnResult(sqlmock.NewResult(0, 1))

	desc := model.MessageDescriptor{
		SourceTag: "event_edit", ExternalChatID: "chat-1", ExternalMessageID: "1",
		Direction: model.DirectionInbound, SentAt: now, AutoCreate: true,
	}
	if err := p.process(context.Background(), desc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestProcessDropsDescriptorForSyncDisabledConversation covers §4.D step 1's
// final clause ("if still unresolved or sync_disabled, drop"): a
// conversation flagged sync_disabled must never receive a write, even
// though it resolves successfully by natural key.
func TestProcessDropsDescriptorForSyncDisabledConversation(t *testing.T) {
	p, mock := newTestProcessor(t)
	now := time.Now()

	disabledRow := sqlmock.NewRows(conversationRowColumns).AddRow(
		"conv-1", "telegram", "chat-1", "", model.ConversationPrivate, true,
		"", nil, nil, 0, "", nil, now, now,
	)
	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs(Source, "chat-1").
		WillReturnRows(disabledRow)

	desc := model.MessageDescriptor{
		SourceTag: "event_new", ExternalChatID: "chat-1", ExternalMessageID: "1",
		Direction: model.DirectionInbound, SentAt: now, AutoCreate: true,
	}
	if err := p.process(context.Background(), desc); err != nil {
		t.Fatalf("expected a silent drop, not an error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations (no insert should have been attempted): %v", err)
	}
}

// TestProcessCachesConversationAcrossDescriptors covers §5's conversation-
// id cache: a second descriptor for the same chat must not re-query the
// store.
func TestProcessCachesConversationAcrossDescriptors(t *testing.T) {
	p, mock := newTestProcessor(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs(Source, "chat-1").
		WillReturnRows(conversationRow(now))
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-1"))
	mock.ExpectExec("UPDATE conversations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-2"))
	mock.ExpectExec("UPDATE conversations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	first := model.MessageDescriptor{
		SourceTag: "event_new", ExternalChatID: "chat-1", ExternalMessageID: "1",
		Direction: model.DirectionInbound, SentAt: now, AutoCreate: true,
	}
	second := first
	second.ExternalMessageID = "2"

	if err := p.process(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.process(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Only one conversation SELECT was registered above; a second lookup
	// hitting the store would not match the next expected statement (an
	// INSERT), so the second process call would fail.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// TestProcessEditOfUnseenMessageMaterializesTheRow resolves the §9 open
// question in favor of original_source's actual behavior: an edit event
// for a message this store has never stored inserts it fresh (and, being
// a genuine first sighting, still advances the checkpoint/unread count).
func TestProcessEditOfUnseenMessageMaterializesTheRow(t *testing.T) {
	p, mock := newTestProcessor(t)
	now := time.Now()

	mock.ExpectQuery("SELECT .* FROM conversations WHERE source = \\$1 AND external_chat_id = \\$2").
		WithArgs(Source, "chat-1").
		WillReturnRows(conversationRow(now))
	mock.ExpectQuery("INSERT INTO messages").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("msg-1"))
	mock.ExpectExec("UPDATE conversations SET").
		WillReturnResult(sqlmock.NewResult(0, 1))

	desc := model.MessageDescriptor{
		SourceTag: "event_edit", ExternalChatID: "chat-1", ExternalMessageID: "1",
		Direction: model.DirectionInbound, SentAt: now, AutoCreate: true,
	}
	if err := p.process(context.Background(), desc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
