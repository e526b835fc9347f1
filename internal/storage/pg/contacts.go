package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// ResolveContactIDByIdentity is the core's only way to look up a contact
// (§3: "the core only looks up contacts by this identity"). Returns
// ErrNotFound when no identity row matches.
func (d *Database) ResolveContactIDByIdentity(ctx context.Context, source, externalID string) (string, error) {
	var contactID string
	err := d.DB.QueryRowContext(ctx, `
		SELECT contact_id FROM source_identities WHERE source = $1 AND external_id = $2`,
		source, externalID,
	).Scan(&contactID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolve contact id by identity: %w", err)
	}
	return contactID, nil
}

// CreateContactWithIdentity creates a Contact plus its SourceIdentity row.
// Only called from the discovery path (§3: "creation is performed only
// during discovery of private chats"), never from the Processor.
func (d *Database) CreateContactWithIdentity(ctx context.Context, source, externalID, displayName, username string) (string, error) {
	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin create contact tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var contactID string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO contacts (display_name, username) VALUES ($1, $2) RETURNING id`,
		displayName, username,
	).Scan(&contactID)
	if err != nil {
		return "", fmt.Errorf("insert contact: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO source_identities (source, external_id, contact_id) VALUES ($1, $2, $3)
		ON CONFLICT (source, external_id) DO NOTHING`,
		source, externalID, contactID,
	)
	if err != nil {
		return "", fmt.Errorf("insert source identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit create contact tx: %w", err)
	}
	return contactID, nil
}

// UpdatePresence applies an upstream UserStatus* update to a Contact.
func (d *Database) UpdatePresence(ctx context.Context, contactID string, isOnline bool, status model.OnlineStatus, lastSeenAt *time.Time) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE contacts SET is_online = $2, online_status = $3, last_seen_at = COALESCE($4, last_seen_at), updated_at = now()
		WHERE id = $1`,
		contactID, isOnline, status, lastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("update presence: %w", err)
	}
	return nil
}
