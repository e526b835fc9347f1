package ingest

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// project turns a producer's MessageDescriptor into the row shape
// InsertMessageIfNotExists/UpdateMessageOnEdit expect, embedding the
// sender descriptor redundantly into Metadata (§9 "sender metadata
// redundancy") so a conversation view never needs a contacts join just
// to render a display name.
func project(desc model.MessageDescriptor, conversationID string, contactID *string) *model.Message {
	return &model.Message{
		ID:                messageID(desc.ExternalMessageID, desc.SentAt.Unix()),
		Source:            Source,
		ConversationID:    conversationID,
		ExternalMessageID: desc.ExternalMessageID,
		Direction:         desc.Direction,
		ContentType:       desc.ContentType,
		Body:              desc.Body,
		SentAt:            desc.SentAt,
		Status:            "received",
		HasAttachments:    desc.HasAttachments,
		Metadata:          model.MessageMetadata{Sender: desc.Sender},
		ContactID:         contactID,
	}
}

// messageID derives a stable id over (external_message_id, sent_at) per
// §4.D step 2, so the same upstream message always hashes to the same
// id regardless of which producer (re-)discovers it. The natural-key
// unique constraint on (source, conversation_id, external_message_id) is
// what actually enforces idempotency; this hash only satisfies the id
// itself being deterministic rather than randomly assigned, and keeps it
// shaped as a UUID for the messages.id column.
func messageID(externalMessageID string, sentAtUnix int64) string {
	data := externalMessageID + ":" + strconv.FormatInt(sentAtUnix, 10)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(data)).String()
}
