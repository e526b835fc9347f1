package upstream

import (
	"context"
	"time"

	"github.com/gotd/td/tg"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// MessageSink is what the realtime dispatcher pushes new/edited messages
// into; internal/ingest.Router implements it. Kept as an interface here
// so this package never imports internal/ingest.
type MessageSink interface {
	Enqueue(ctx context.Context, desc model.MessageDescriptor) error
}

// ReadStateSink receives the two directly-observed read-state event
// kinds (§4.D "read-state events bypass the Router"): inbox read acks
// and unread-mark toggles, applied straight to the store.
type ReadStateSink interface {
	ApplyReadAck(ctx context.Context, externalChatID, lastReadExternalID string) error
	ApplyUnreadMarkToggle(ctx context.Context, externalChatID string, unread bool) error
}

// PresenceSink receives user online/offline status pushes.
type PresenceSink interface {
	UpdatePresence(ctx context.Context, externalUserID string, status model.OnlineStatus, lastSeenAt *time.Time) error
}

// Dispatcher wires a tg.UpdateDispatcher's callbacks to the three sinks
// above, translating wire updates into store-agnostic model types. Shape
// is grounded on the ernado-gotd-example and KurtSkinny-telegram-userbot
// dispatcher registrations in _examples/other_examples/.
type Dispatcher struct {
	messages MessageSink
	reads    ReadStateSink
	presence PresenceSink
	log      *logger.Logger
}

// NewDispatcher builds and registers a tg.UpdateDispatcher against the
// three sinks. The returned dispatcher is passed to NewClient as the
// upstream client's UpdateHandler.
func NewDispatcher(messages MessageSink, reads ReadStateSink, presence PresenceSink, log *logger.Logger) tg.UpdateDispatcher {
	d := &Dispatcher{messages: messages, reads: reads, presence: presence, log: log.WithComponent("upstream_dispatcher")}
	dispatcher := tg.NewUpdateDispatcher()

	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		return d.handleMessage(ctx, e, u.Message, "event_new")
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		return d.handleMessage(ctx, e, u.Message, "event_new")
	})
	dispatcher.OnEditMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditMessage) error {
		return d.handleMessage(ctx, e, u.Message, "event_edit")
	})
	dispatcher.OnEditChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateEditChannelMessage) error {
		return d.handleMessage(ctx, e, u.Message, "event_edit")
	})

	dispatcher.OnReadHistoryInbox(func(ctx context.Context, e tg.Entities, u *tg.UpdateReadHistoryInbox) error {
		return d.handleReadAck(ctx, peerChatID(u.Peer), u.MaxID)
	})
	dispatcher.OnReadChannelInbox(func(ctx context.Context, e tg.Entities, u *tg.UpdateReadChannelInbox) error {
		return d.handleReadAck(ctx, channelChatID(u.ChannelID), u.MaxID)
	})

	dispatcher.OnUserStatus(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserStatus) error {
		status, lastSeen := mapUserStatus(u.Status)
		if err := d.presence.UpdatePresence(ctx, userChatID(u.UserID), status, lastSeen); err != nil {
			d.log.LogError(ctx, err, "presence update failed", "external_user_id", u.UserID)
		}
		return nil
	})

	dispatcher.OnDialogUnreadMark(func(ctx context.Context, e tg.Entities, u *tg.UpdateDialogUnreadMark) error {
		dp, ok := u.Peer.(*tg.DialogPeer)
		if !ok {
			return nil // folder-peer variant carries no single chat to toggle
		}
		if err := d.reads.ApplyUnreadMarkToggle(ctx, peerChatID(dp.Peer), u.Unread); err != nil {
			d.log.LogError(ctx, err, "unread mark toggle apply failed", "external_chat_id", peerChatID(dp.Peer))
		}
		return nil
	})

	return dispatcher
}

func (d *Dispatcher) handleMessage(ctx context.Context, entities tg.Entities, msgClass tg.MessageClass, sourceTag string) error {
	msg, ok := msgClass.(*tg.Message)
	if !ok {
		// Service messages (calls, pins, member changes) have no text body
		// to project; nothing to enqueue.
		return nil
	}
	if msg.Out {
		// Our own outbound messages arrive back as updates too; they are
		// skipped here and stored when a catch-up loop fetches history.
		return nil
	}

	desc := model.MessageDescriptor{
		SourceTag:         sourceTag,
		ExternalChatID:    peerChatID(msg.PeerID),
		ExternalMessageID: itoa(msg.ID),
		Direction:         model.DirectionInbound,
		ContentType:       contentTypeOf(msg),
		Body:              msg.Message,
		SentAt:            time.Unix(int64(msg.Date), 0).UTC(),
		HasAttachments:    msg.Media != nil,
		Sender:            senderDescriptorOf(entities, msg.FromID),
		AutoCreate:        true,
	}

	if err := d.messages.Enqueue(ctx, desc); err != nil {
		d.log.LogError(ctx, err, "enqueue failed", "external_chat_id", desc.ExternalChatID)
	}
	return nil
}

func (d *Dispatcher) handleReadAck(ctx context.Context, externalChatID string, maxID int) error {
	if err := d.reads.ApplyReadAck(ctx, externalChatID, itoa(maxID)); err != nil {
		d.log.LogError(ctx, err, "read ack apply failed", "external_chat_id", externalChatID)
	}
	return nil
}

func contentTypeOf(msg *tg.Message) model.MessageContentType {
	if msg.Media != nil {
		return model.ContentTypeMedia
	}
	return model.ContentTypeText
}
