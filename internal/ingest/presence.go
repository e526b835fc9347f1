package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

// Presence implements upstream.PresenceSink (§9 "Presence tracking").
// Unlike messages, a presence update for a contact we've never seen is
// simply dropped: contacts are only ever created at discovery time.
type Presence struct {
	db  *pg.Database
	log *logger.Logger
}

// NewPresence builds a Presence sink.
func NewPresence(db *pg.Database, log *logger.Logger) *Presence {
	return &Presence{db: db, log: log.WithComponent("presence")}
}

// UpdatePresence resolves the contact by source identity and updates its
// online status, silently dropping updates for unknown contacts.
func (p *Presence) UpdatePresence(ctx context.Context, externalUserID string, status model.OnlineStatus, lastSeenAt *time.Time) error {
	contactID, err := p.db.ResolveContactIDByIdentity(ctx, Source, externalUserID)
	if errors.Is(err, pg.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve contact for presence: %w", err)
	}
	isOnline := status == model.OnlineStatusOnline
	return p.db.UpdatePresence(ctx, contactID, isOnline, status, lastSeenAt)
}
