package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

// ReadState implements upstream.ReadStateSink: the two directly-observed
// read-state event kinds bypass the Router entirely and write straight
// to the conversation row (§4.D), since they carry no message body to
// dedup or project.
type ReadState struct {
	db  *pg.Database
	log *logger.Logger
}

// NewReadState builds a ReadState sink.
func NewReadState(db *pg.Database, log *logger.Logger) *ReadState {
	return &ReadState{db: db, log: log.WithComponent("read_state")}
}

// ApplyReadAck resolves the conversation by natural key and forwards the
// read-ack to the store's gated update.
func (r *ReadState) ApplyReadAck(ctx context.Context, externalChatID, lastReadExternalID string) error {
	conv, err := r.db.GetConversationByExternalChatID(ctx, Source, externalChatID)
	if errors.Is(err, pg.ErrNotFound) {
		return nil // unknown conversation, nothing to ack against yet
	}
	if err != nil {
		return fmt.Errorf("resolve conversation for read ack: %w", err)
	}
	return r.db.ApplyReadAck(ctx, conv.ID, lastReadExternalID)
}

// ApplyUnreadMarkToggle resolves the conversation and forwards the
// dialog's manual unread-mark toggle.
func (r *ReadState) ApplyUnreadMarkToggle(ctx context.Context, externalChatID string, unread bool) error {
	conv, err := r.db.GetConversationByExternalChatID(ctx, Source, externalChatID)
	if errors.Is(err, pg.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve conversation for unread toggle: %w", err)
	}
	return r.db.ApplyUnreadMarkToggle(ctx, conv.ID, unread)
}
