package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// ErrNotFound is returned by single-row lookups that found nothing.
var ErrNotFound = errors.New("not found")

func scanConversation(row interface {
	Scan(dest ...interface{}) error
}) (*model.Conversation, error) {
	var c model.Conversation
	var lastSyncedMessageID, lastReadMessageID sql.NullString
	var lastSyncedAt, lastMessageAt, lastReadAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.Source, &c.ExternalChatID, &c.Title, &c.Kind, &c.SyncDisabled,
		&lastSyncedMessageID, &lastSyncedAt, &lastMessageAt, &c.UnreadCount,
		&lastReadMessageID, &lastReadAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LastSyncedMessageID = lastSyncedMessageID.String
	c.LastReadMessageID = lastReadMessageID.String
	if lastSyncedAt.Valid {
		c.LastSyncedAt = &lastSyncedAt.Time
	}
	if lastMessageAt.Valid {
		c.LastMessageAt = &lastMessageAt.Time
	}
	if lastReadAt.Valid {
		c.LastReadAt = &lastReadAt.Time
	}
	return &c, nil
}

const conversationColumns = `
	id, source, external_chat_id, title, kind, sync_disabled,
	last_synced_message_id, last_synced_at, last_message_at, unread_count,
	last_read_message_id, last_read_at, created_at, updated_at`

// GetConversationByExternalChatID is the cache-miss path used by the
// Processor (§4.D step 1) to resolve a conversation by its natural key.
func (d *Database) GetConversationByExternalChatID(ctx context.Context, source, externalChatID string) (*model.Conversation, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+conversationColumns+`
		FROM conversations WHERE source = $1 AND external_chat_id = $2`, source, externalChatID)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation by external chat id: %w", err)
	}
	return c, nil
}

// GetConversationByID resolves a conversation by its store id.
func (d *Database) GetConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+conversationColumns+`
		FROM conversations WHERE id = $1`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation by id: %w", err)
	}
	return c, nil
}

// CreateConversation inserts a new conversation, or on a natural-key
// conflict updates only the title (Discovery's create-from-chat path,
// §4.E "conflict on (source, external_chat_id) updates title only").
func (d *Database) CreateConversation(ctx context.Context, source, externalChatID, title string, kind model.ConversationKind) (*model.Conversation, error) {
	row := d.DB.QueryRowContext(ctx, `
		INSERT INTO conversations (source, external_chat_id, title, kind)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source, external_chat_id) DO UPDATE SET title = EXCLUDED.title, updated_at = now()
		RETURNING `+conversationColumns,
		source, externalChatID, title, kind,
	)
	c, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// ApplyInboundInsertUpdate is the conversation-row side-effect of a
// successful message insert (§4.D step 5): advances last_message_at and
// the checkpoint, and for inbound messages bumps unread_count.
func (d *Database) ApplyInboundInsertUpdate(ctx context.Context, conversationID string, externalMessageID string, sentAt time.Time, direction model.MessageDirection) error {
	incrementUnread := direction == model.DirectionInbound
	_, err := d.DB.ExecContext(ctx, `
		UPDATE conversations SET
			last_message_at = GREATEST(last_message_at, $2),
			last_synced_message_id = GREATEST(
				COALESCE(NULLIF(last_synced_message_id, '')::bigint, 0),
				$3::bigint
			)::text,
			last_synced_at = now(),
			unread_count = unread_count + (CASE WHEN $4 THEN 1 ELSE 0 END),
			updated_at = now()
		WHERE id = $1`,
		conversationID, sentAt, externalMessageID, incrementUnread,
	)
	if err != nil {
		return fmt.Errorf("apply inbound insert update: %w", err)
	}
	return nil
}

// ApplyReadAck implements the outbox read-ack rule (§4.D): gated on X
// being newer than the stored id.
func (d *Database) ApplyReadAck(ctx context.Context, conversationID string, maxExternalID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE conversations SET
			unread_count = 0,
			last_read_message_id = $2,
			last_read_at = now(),
			updated_at = now()
		WHERE id = $1
		  AND $2::bigint > COALESCE(NULLIF(last_read_message_id, '')::bigint, 0)`,
		conversationID, maxExternalID,
	)
	if err != nil {
		return fmt.Errorf("apply read ack: %w", err)
	}
	return nil
}

// ApplyUnreadMarkToggle implements the dialog unread-mark rule (§4.D).
func (d *Database) ApplyUnreadMarkToggle(ctx context.Context, conversationID string, marked bool) error {
	var err error
	if marked {
		_, err = d.DB.ExecContext(ctx, `
			UPDATE conversations SET unread_count = GREATEST(unread_count, 1), last_read_at = NULL, updated_at = now()
			WHERE id = $1`, conversationID)
	} else {
		_, err = d.DB.ExecContext(ctx, `
			UPDATE conversations SET unread_count = 0, last_read_at = now(), updated_at = now()
			WHERE id = $1`, conversationID)
	}
	if err != nil {
		return fmt.Errorf("apply unread mark toggle: %w", err)
	}
	return nil
}

// ReconcileDialogState is the diff-before-write used by dialog discovery
// (original_source's _sync_dialog_status): only issues the UPDATE when at
// least one of unread_count/last_read_message_id actually changed, to
// avoid write amplification on an unattended scan of up to 200 dialogs.
func (d *Database) ReconcileDialogState(ctx context.Context, conversationID string, unreadCount int, lastReadMessageID string) error {
	current, err := d.GetConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if current.UnreadCount == unreadCount && current.LastReadMessageID == lastReadMessageID {
		return nil
	}
	_, err = d.DB.ExecContext(ctx, `
		UPDATE conversations SET unread_count = $2, last_read_message_id = $3, updated_at = now()
		WHERE id = $1`, conversationID, unreadCount, lastReadMessageID)
	if err != nil {
		return fmt.Errorf("reconcile dialog state: %w", err)
	}
	return nil
}

// ActivePollCandidates returns the 100 most-recently-active conversations
// (§4.C producer 2).
func (d *Database) ActivePollCandidates(ctx context.Context, limit int) ([]*model.Conversation, error) {
	return d.conversationsQuery(ctx, `SELECT `+conversationColumns+`
		FROM conversations WHERE sync_disabled = FALSE
		ORDER BY last_message_at DESC NULLS LAST LIMIT $1`, limit)
}

// FullCatchupCandidates returns up to `limit` conversations ordered by
// last_synced_at ascending, NULLS FIRST (§4.C producer 3).
func (d *Database) FullCatchupCandidates(ctx context.Context, limit int) ([]*model.Conversation, error) {
	return d.conversationsQuery(ctx, `SELECT `+conversationColumns+`
		FROM conversations WHERE sync_disabled = FALSE
		ORDER BY last_synced_at ASC NULLS FIRST LIMIT $1`, limit)
}

// EmptyConversations finds conversations with zero messages, healing past
// discovery-without-seed failures (§4.E sync_empty_conversations).
func (d *Database) EmptyConversations(ctx context.Context, limit int) ([]*model.Conversation, error) {
	return d.conversationsQuery(ctx, `
		SELECT `+conversationColumnsAliased("c")+`
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.sync_disabled = FALSE
		GROUP BY c.id
		HAVING COUNT(m.id) = 0
		LIMIT $1`, limit)
}

func conversationColumnsAliased(alias string) string {
	return alias + `.id, ` + alias + `.source, ` + alias + `.external_chat_id, ` + alias + `.title, ` + alias + `.kind, ` + alias + `.sync_disabled,
	` + alias + `.last_synced_message_id, ` + alias + `.last_synced_at, ` + alias + `.last_message_at, ` + alias + `.unread_count,
	` + alias + `.last_read_message_id, ` + alias + `.last_read_at, ` + alias + `.created_at, ` + alias + `.updated_at`
}

func (d *Database) conversationsQuery(ctx context.Context, query string, args ...interface{}) ([]*model.Conversation, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversations query: %w", err)
	}
	defer rows.Close()

	var out []*model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
