package upstream

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gotd/td/tg"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// FileStore resolves an attachment's storage key to bytes and a suggested
// upload name, the boundary the Outbox Sender crosses to fetch a file
// before handing it to SendMessage.
type FileStore interface {
	Fetch(ctx context.Context, storageKey string) (data []byte, name string, err error)
}

// SendResult is what a successful send reports back to the outbox row.
type SendResult struct {
	SentMessageID string
}

// SendMessage implements the Outbox Sender's dispatch matrix (§4.F): no
// attachment sends plain text, photo/voice/video use their dedicated
// upload kind, anything else (including AttachmentDocument and
// AttachmentAudio) falls through to a forced document upload.
func (c *Client) SendMessage(ctx context.Context, peer tg.InputPeerClass, out *model.OutgoingMessage, store FileStore) (*SendResult, error) {
	if out.Attachment == nil {
		return c.sendText(ctx, peer, out)
	}

	data, name, err := store.Fetch(ctx, out.Attachment.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment %s: %w", out.Attachment.StorageKey, err)
	}
	if out.Attachment.Name != "" {
		name = out.Attachment.Name
	}

	uploaded, err := c.uploadFile(ctx, data, name)
	if err != nil {
		return nil, translateErr(out.ConversationID, err)
	}

	var media tg.InputMediaClass
	forceDocument := false
	switch out.Attachment.Kind {
	case model.AttachmentPhoto:
		media = &tg.InputMediaUploadedPhoto{File: uploaded}
	case model.AttachmentVoice:
		media = &tg.InputMediaUploadedDocument{
			File:       uploaded,
			MimeType:   orDefault(out.Attachment.MIME, "audio/ogg"),
			Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeAudio{Voice: true}},
		}
	case model.AttachmentVideo:
		media = &tg.InputMediaUploadedDocument{
			File:       uploaded,
			MimeType:   orDefault(out.Attachment.MIME, "video/mp4"),
			Attributes: []tg.DocumentAttributeClass{&tg.DocumentAttributeVideo{}},
		}
	default:
		forceDocument = true
		media = &tg.InputMediaUploadedDocument{
			File:     uploaded,
			MimeType: orDefault(out.Attachment.MIME, "application/octet-stream"),
			Attributes: []tg.DocumentAttributeClass{
				&tg.DocumentAttributeFilename{FileName: name},
			},
			ForceFile: forceDocument,
		}
	}

	req := &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    media,
		Message:  out.Attachment.Caption,
		RandomID: randomID(),
		ReplyTo:  replyToOf(out.ReplyToExternal),
	}
	updates, err := c.API().MessagesSendMedia(ctx, req)
	if err != nil {
		return nil, translateErr(out.ConversationID, err)
	}
	return &SendResult{SentMessageID: itoa(sentMessageID(updates))}, nil
}

func (c *Client) sendText(ctx context.Context, peer tg.InputPeerClass, out *model.OutgoingMessage) (*SendResult, error) {
	req := &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  out.Text,
		RandomID: randomID(),
		ReplyTo:  replyToOf(out.ReplyToExternal),
	}
	updates, err := c.API().MessagesSendMessage(ctx, req)
	if err != nil {
		return nil, translateErr(out.ConversationID, err)
	}
	return &SendResult{SentMessageID: itoa(sentMessageID(updates))}, nil
}

// replyToOf builds the InputReplyTo the send requests want when the
// outbox row names a message to reply to, nil otherwise.
func replyToOf(replyToExternal string) tg.InputReplyToClass {
	if replyToExternal == "" {
		return nil
	}
	id, err := strconv.Atoi(replyToExternal)
	if err != nil {
		return nil
	}
	return &tg.InputReplyToMessage{ReplyToMsgID: id}
}

func (c *Client) uploadFile(ctx context.Context, data []byte, name string) (tg.InputFileClass, error) {
	return uploaderFor(c).FromBytes(ctx, name, data)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// sentMessageID extracts the new message's server id out of whichever
// Updates variant MessagesSendMessage/SendMedia returned.
func sentMessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.Updates:
		for _, upd := range u.Updates {
			if m, ok := upd.(*tg.UpdateMessageID); ok {
				return m.ID
			}
		}
	case *tg.UpdateShortSentMessage:
		return u.ID
	}
	return 0
}
