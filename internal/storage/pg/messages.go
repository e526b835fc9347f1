package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// InsertMessageIfNotExists is the idempotent insert from §4.D step 4: keyed
// by (source, conversation_id, external_message_id). Returns (id, true) if
// a new row was actually inserted, or ("", false) on a natural-key
// conflict — the caller checks this before deciding whether to advance the
// conversation checkpoint. msg.ID is the caller-supplied deterministic hash
// (§4.D step 2); idempotency itself still rides on the natural-key conflict
// below, not on this id matching across calls.
func (d *Database) InsertMessageIfNotExists(ctx context.Context, msg *model.Message) (string, bool, error) {
	metadataJSON, err := json.Marshal(msg.Metadata)
	if err != nil {
		return "", false, fmt.Errorf("marshal message metadata: %w", err)
	}

	var id string
	err = d.DB.QueryRowContext(ctx, `
		INSERT INTO messages (
			id, source, conversation_id, external_message_id, direction, content_type,
			body, sent_at, status, has_attachments, metadata, contact_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (source, conversation_id, external_message_id) DO NOTHING
		RETURNING id`,
		msg.ID, msg.Source, msg.ConversationID, msg.ExternalMessageID, msg.Direction, msg.ContentType,
		msg.Body, msg.SentAt, msg.Status, msg.HasAttachments, metadataJSON, msg.ContactID,
	).Scan(&id)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("insert message if not exists: %w", err)
	}
	return id, true, nil
}

// UpdateMessageOnEdit overwrites only body and metadata for an existing
// message, restricted by natural key (§4.D step 6). unread_count is
// untouched by design — the caller never calls this for a non-edit event.
func (d *Database) UpdateMessageOnEdit(ctx context.Context, source, conversationID, externalMessageID string, body string, metadata model.MessageMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}
	_, err = d.DB.ExecContext(ctx, `
		UPDATE messages SET body = $4, metadata = $5, updated_at = now()
		WHERE source = $1 AND conversation_id = $2 AND external_message_id = $3`,
		source, conversationID, externalMessageID, body, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("update message on edit: %w", err)
	}
	return nil
}

// CountMessagesForConversation counts the messages stored for one
// conversation.
func (d *Database) CountMessagesForConversation(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := d.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages for conversation: %w", err)
	}
	return n, nil
}
