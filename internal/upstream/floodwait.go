package upstream

import (
	"errors"
	"time"

	"github.com/gotd/td/tgerr"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/coreerrors"
)

// translateErr maps a gotd/td RPC error into the sentinel core error kinds
// callers match on with errors.As/errors.Is (§7): flood waits carry their
// wait duration, and the access-denied family (private channel, admin
// required, entity gone) is recognized by the RPC error types gotd/td
// surfaces via tgerr (CHANNEL_PRIVATE, CHAT_FORBIDDEN, CHANNEL_INVALID, ...).
func translateErr(chatID string, err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &coreerrors.UpstreamFloodWaitError{Wait: wait}
	}

	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Type {
		case "CHANNEL_PRIVATE", "CHAT_FORBIDDEN", "USER_DEACTIVATED_BAN":
			return &coreerrors.UpstreamAccessDeniedError{Reason: "private_channel", ChatID: chatID}
		case "CHANNEL_INVALID", "PEER_ID_INVALID":
			return &coreerrors.UpstreamAccessDeniedError{Reason: "entity_not_found", ChatID: chatID}
		case "CHAT_ADMIN_REQUIRED":
			return &coreerrors.UpstreamAccessDeniedError{Reason: "admin_required", ChatID: chatID}
		}
	}
	return err
}

// floodWaitSeconds converts a raw flood-wait seconds count into a
// time.Duration, for code that has no full tgerr.Error to translate.
func floodWaitSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
