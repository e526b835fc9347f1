package upstream

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/tg"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// DialogSummary is one entry from the dialog list, enough for the
// discovery loop to create-or-reconcile a conversation row.
type DialogSummary struct {
	ExternalChatID string
	Title          string
	Kind           model.ConversationKind
	UnreadCount    int
	TopMessageID   int
	InputPeer      tg.InputPeerClass
}

// ListDialogs enumerates up to limit dialogs via query.GetDialogs, the
// canonical gotd/td iteration helper (grounded on ernado-gotd-example's
// main.go), waiting on Pacer after each dialog it keeps.
func (c *Client) ListDialogs(ctx context.Context, limit int) ([]DialogSummary, error) {
	iter := query.GetDialogs(c.API()).Iter()

	var out []DialogSummary
	for iter.Next(ctx) {
		if len(out) >= limit {
			break
		}
		elem := iter.Value()
		summary, ok := dialogSummaryOf(elem)
		if !ok {
			continue
		}
		out = append(out, summary)
		if err := c.Pacer.Wait(ctx); err != nil {
			return out, err
		}
	}
	if err := iter.Err(); err != nil {
		return out, translateErr("dialogs", err)
	}
	return out, nil
}

func dialogSummaryOf(elem query.DialogElem) (DialogSummary, bool) {
	d, ok := elem.Dialog.(*tg.Dialog)
	if !ok {
		return DialogSummary{}, false
	}

	chatID := peerChatID(d.Peer)
	title, kind := "", model.ConversationPrivate

	var inputPeer tg.InputPeerClass
	switch pr := d.Peer.(type) {
	case *tg.PeerUser:
		if u, ok := elem.Entities.Users()[pr.UserID]; ok {
			title = displayName(u.FirstName, u.LastName)
			inputPeer = &tg.InputPeerUser{UserID: u.ID, AccessHash: u.AccessHash}
		}
		kind = model.ConversationPrivate
	case *tg.PeerChat:
		if chat, ok := elem.Entities.Chats()[pr.ChatID]; ok {
			title = chat.Title
		}
		inputPeer = &tg.InputPeerChat{ChatID: pr.ChatID}
		kind = model.ConversationGroup
	case *tg.PeerChannel:
		if ch, ok := elem.Entities.Channels()[pr.ChannelID]; ok {
			title = ch.Title
			inputPeer = &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
			if ch.Megagroup {
				kind = model.ConversationSupergroup
			} else {
				kind = model.ConversationChannel
			}
		}
	}
	if inputPeer == nil {
		return DialogSummary{}, false
	}

	return DialogSummary{
		ExternalChatID: chatID,
		Title:          title,
		Kind:           kind,
		UnreadCount:    d.UnreadCount,
		TopMessageID:   d.TopMessage,
		InputPeer:      inputPeer,
	}, true
}

// FetchHistory pulls up to limit messages from a chat newer than minID
// (0 for no checkpoint yet). MinID anchors MessagesGetHistory so catch-up
// paginates forward from last_synced_message_id instead of always
// returning the latest page (§4.A discovery "seed last 50 messages",
// full catch-up "messages with external_id > last_synced_message_id").
func (c *Client) FetchHistory(ctx context.Context, peer tg.InputPeerClass, minID, limit int) ([]model.MessageDescriptor, error) {
	req := &tg.MessagesGetHistoryRequest{Peer: peer, Limit: limit, MinID: minID}
	resp, err := c.API().MessagesGetHistory(ctx, req)
	if err != nil {
		return nil, translateErr(fmt.Sprint(peer), translateErr("history", err))
	}

	msgs, entities := historyMessages(resp)
	out := make([]model.MessageDescriptor, 0, len(msgs))
	for _, m := range msgs {
		msg, ok := m.(*tg.Message)
		if !ok {
			continue
		}
		out = append(out, model.MessageDescriptor{
			SourceTag:         "full_catchup",
			ExternalChatID:    peerChatID(msg.PeerID),
			ExternalMessageID: itoa(msg.ID),
			Direction:         directionOf(msg),
			ContentType:       contentTypeOf(msg),
			Body:              msg.Message,
			SentAt:            time.Unix(int64(msg.Date), 0).UTC(),
			HasAttachments:    msg.Media != nil,
			Sender:            senderDescriptorOf(entities, msg.FromID),
			AutoCreate:        false,
		})
	}
	return out, nil
}

func directionOf(msg *tg.Message) model.MessageDirection {
	if msg.Out {
		return model.DirectionOutbound
	}
	return model.DirectionInbound
}

// historyMessages unwraps the three MessagesMessages response variants
// gotd/td can return for MessagesGetHistory.
func historyMessages(resp tg.MessagesMessagesClass) ([]tg.MessageClass, tg.Entities) {
	switch r := resp.(type) {
	case *tg.MessagesMessages:
		return r.Messages, tg.Entities{}
	case *tg.MessagesMessagesSlice:
		return r.Messages, tg.Entities{}
	case *tg.MessagesChannelMessages:
		return r.Messages, tg.Entities{}
	default:
		return nil, tg.Entities{}
	}
}

// MarkRead acks read state up to msgID, mirroring the markread pattern in
// KurtSkinny-telegram-userbot's internal/domain/updates.
func (c *Client) MarkRead(ctx context.Context, peer tg.InputPeerClass, msgID int) error {
	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		_, err := c.API().ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{ChannelID: p.ChannelID, AccessHash: p.AccessHash},
			MaxID:   msgID,
		})
		return translateErr("mark_read", err)
	default:
		_, err := c.API().MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{Peer: peer, MaxID: msgID})
		return translateErr("mark_read", err)
	}
}
