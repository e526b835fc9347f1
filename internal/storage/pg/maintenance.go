package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// AllConversations lists every conversation for a source, never-synced
// first and then oldest-synced first, for the maintenance CLIs that must walk the whole table rather
// than the bounded candidate sets the worker's own loops use.
func (d *Database) AllConversations(ctx context.Context, source string) ([]*model.Conversation, error) {
	return d.conversationsQuery(ctx, `SELECT `+conversationColumns+`
		FROM conversations WHERE source = $1 ORDER BY last_synced_at ASC NULLS FIRST`, source)
}

// SetMemberCount updates a group/channel conversation's last known
// member count, used by cmd/membercount. The worker never reads this
// value back; it exists purely for operator-facing reporting.
func (d *Database) SetMemberCount(ctx context.Context, conversationID string, count int) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE conversations SET member_count = $2, updated_at = now()
		WHERE id = $1`, conversationID, count)
	if err != nil {
		return fmt.Errorf("set member count: %w", err)
	}
	return nil
}

// SetAvatarPath records where cmd/avatarsync wrote a contact's profile
// photo on disk.
func (d *Database) SetAvatarPath(ctx context.Context, contactID string, path string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE contacts SET avatar_path = $2, updated_at = now()
		WHERE id = $1`, contactID, path)
	if err != nil {
		return fmt.Errorf("set avatar path: %w", err)
	}
	return nil
}

// MessagesMissingSenderMetadata returns inbound group/channel messages
// whose metadata carries no sender descriptor, for cmd/backfill.
func (d *Database) MessagesMissingSenderMetadata(ctx context.Context, conversationID string) ([]*model.Message, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, source, conversation_id, external_message_id, direction, content_type,
			body, sent_at, status, has_attachments, metadata, contact_id, created_at, updated_at
		FROM messages
		WHERE conversation_id = $1 AND direction = $2 AND (metadata->'sender'->>'external_id' IS NULL OR metadata->'sender'->>'external_id' = '')`,
		conversationID, model.DirectionInbound,
	)
	if err != nil {
		return nil, fmt.Errorf("messages missing sender metadata: %w", err)
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var metadataJSON []byte
		var contactID *string
		if err := rows.Scan(
			&m.ID, &m.Source, &m.ConversationID, &m.ExternalMessageID, &m.Direction, &m.ContentType,
			&m.Body, &m.SentAt, &m.Status, &m.HasAttachments, &metadataJSON, &contactID, &m.CreatedAt, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message missing sender metadata: %w", err)
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &m.Metadata)
		}
		m.ContactID = contactID
		out = append(out, &m)
	}
	return out, rows.Err()
}

// BackfillSenderMetadata writes the resolved sender descriptor onto an
// existing message without touching body or any other column.
func (d *Database) BackfillSenderMetadata(ctx context.Context, messageID string, sender model.SenderDescriptor) error {
	metadata := model.MessageMetadata{Sender: sender}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal backfill metadata: %w", err)
	}
	_, err = d.DB.ExecContext(ctx, `UPDATE messages SET metadata = $2, updated_at = now() WHERE id = $1`, messageID, metadataJSON)
	if err != nil {
		return fmt.Errorf("backfill sender metadata: %w", err)
	}
	return nil
}

// WipeCounts reports how many rows each DeleteAllSourceData step removed.
type WipeCounts struct {
	Messages         int64
	Conversations    int64
	SourceIdentities int64
	Contacts         int64
}

// DeleteAllSourceData removes every row this source ever wrote, in
// dependency order, then prunes contacts left with no remaining
// identity from any other source. Used by cmd/wipe to reset sync state.
func (d *Database) DeleteAllSourceData(ctx context.Context, source string) (WipeCounts, error) {
	var counts WipeCounts
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return counts, fmt.Errorf("begin wipe tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE source = $1`, source)
	if err != nil {
		return counts, fmt.Errorf("delete messages: %w", err)
	}
	counts.Messages, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `
		DELETE FROM contacts WHERE id IN (
			SELECT si.contact_id FROM source_identities si
			WHERE si.source = $1
			AND NOT EXISTS (
				SELECT 1 FROM source_identities other
				WHERE other.contact_id = si.contact_id AND other.source != $1
			)
		)`, source)
	if err != nil {
		return counts, fmt.Errorf("delete orphaned contacts: %w", err)
	}
	counts.Contacts, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM source_identities WHERE source = $1`, source)
	if err != nil {
		return counts, fmt.Errorf("delete source identities: %w", err)
	}
	counts.SourceIdentities, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE source = $1`, source)
	if err != nil {
		return counts, fmt.Errorf("delete conversations: %w", err)
	}
	counts.Conversations, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return counts, fmt.Errorf("commit wipe tx: %w", err)
	}
	return counts, nil
}
