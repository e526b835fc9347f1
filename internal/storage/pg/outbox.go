package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

func scanOutgoing(row interface{ Scan(dest ...interface{}) error }) (*model.OutgoingMessage, error) {
	var m model.OutgoingMessage
	var replyTo, lockedBy, errMsg, sentMessageID sql.NullString
	var attachKind, attachKey, attachCaption, attachMIME, attachName sql.NullString
	var scheduledFor, lockedAt, sentAt sql.NullTime

	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Text, &replyTo,
		&attachKind, &attachKey, &attachCaption, &attachMIME, &attachName,
		&m.Status, &scheduledFor, &lockedBy, &lockedAt,
		&m.RetryCount, &m.MaxRetries, &errMsg, &sentMessageID, &sentAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ReplyToExternal = replyTo.String
	m.LockedBy = lockedBy.String
	m.ErrorMessage = errMsg.String
	m.SentMessageID = sentMessageID.String
	if scheduledFor.Valid {
		m.ScheduledFor = &scheduledFor.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	if sentAt.Valid {
		m.SentAt = &sentAt.Time
	}
	if attachKind.Valid {
		m.Attachment = &model.Attachment{
			Kind:       model.AttachmentKind(attachKind.String),
			StorageKey: attachKey.String,
			Caption:    attachCaption.String,
			MIME:       attachMIME.String,
			Name:       attachName.String,
		}
	}
	return &m, nil
}

const outgoingColumns = `
	id, conversation_id, text, reply_to_external,
	attachment_kind, attachment_storage_key, attachment_caption, attachment_mime, attachment_name,
	status, scheduled_for, locked_by, locked_at,
	retry_count, max_retries, error_message, sent_message_id, sent_at, created_at`

// ClaimNextOutgoingMessage performs §4.F's atomic claim as two statements
// in one transaction: a SELECT picks the oldest pending row, gated on
// schedule and stale-lock expiry, under FOR UPDATE SKIP LOCKED, and an
// UPDATE moves it pending -> sending, so concurrent senders never
// double-claim the same row (testable property 9).
func (d *Database) ClaimNextOutgoingMessage(ctx context.Context, lockedBy string, staleLockAfter time.Duration) (*model.OutgoingMessage, error) {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, `
		SELECT id FROM outgoing_messages
		WHERE status = 'pending'
		  AND (scheduled_for IS NULL OR scheduled_for <= now())
		  AND (locked_by IS NULL OR locked_at < now() - ($1::text || ' seconds')::interval)
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		int(staleLockAfter.Seconds()),
	)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select claim candidate: %w", err)
	}

	claimed := tx.QueryRowContext(ctx, `
		UPDATE outgoing_messages SET status = 'sending', locked_by = $2, locked_at = now()
		WHERE id = $1
		RETURNING `+outgoingColumns,
		id, lockedBy,
	)
	m, err := scanOutgoing(claimed)
	if err != nil {
		return nil, fmt.Errorf("claim outgoing message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return m, nil
}

// MarkOutgoingSent records a successful send and clears the lock.
func (d *Database) MarkOutgoingSent(ctx context.Context, id, sentMessageID string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE outgoing_messages SET
			status = 'sent', sent_message_id = $2, sent_at = now(),
			locked_by = NULL, locked_at = NULL, error_message = NULL
		WHERE id = $1`,
		id, sentMessageID,
	)
	if err != nil {
		return fmt.Errorf("mark outgoing sent: %w", err)
	}
	return nil
}

// MarkOutgoingFailure implements §4.F's failure branch: increments
// retry_count, and either returns the row to pending with the error
// recorded, or moves it to failed once max_retries is reached. The error
// string is truncated to 500 characters per spec.md §4.F.
func (d *Database) MarkOutgoingFailure(ctx context.Context, id string, sendErr error) error {
	msg := sendErr.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	_, err := d.DB.ExecContext(ctx, `
		UPDATE outgoing_messages SET
			retry_count = retry_count + 1,
			error_message = $2,
			locked_by = NULL, locked_at = NULL,
			status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END
		WHERE id = $1`,
		id, msg,
	)
	if err != nil {
		return fmt.Errorf("mark outgoing failure: %w", err)
	}
	return nil
}

// GetOutgoingByID loads one outbox row by id, ErrNotFound if absent.
func (d *Database) GetOutgoingByID(ctx context.Context, id string) (*model.OutgoingMessage, error) {
	row := d.DB.QueryRowContext(ctx, `SELECT `+outgoingColumns+` FROM outgoing_messages WHERE id = $1`, id)
	m, err := scanOutgoing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outgoing by id: %w", err)
	}
	return m, nil
}
