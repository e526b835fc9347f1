// Package model holds the store-agnostic domain types shared by every
// component: the Conversation/Message/Contact graph, locks, listener
// state, and the outbox. Names here are design-level, not column names.
package model

import "time"

// ConversationKind enumerates the upstream chat kinds the core tracks.
type ConversationKind string

const (
	ConversationPrivate    ConversationKind = "private"
	ConversationGroup      ConversationKind = "group"
	ConversationSupergroup ConversationKind = "supergroup"
	ConversationChannel    ConversationKind = "channel"
)

// Conversation is one row per upstream chat, keyed by (source, external_chat_id).
type Conversation struct {
	ID                  string
	Source              string
	ExternalChatID      string
	Title               string
	Kind                ConversationKind
	SyncDisabled        bool
	LastSyncedMessageID string // stringified integer checkpoint, "" if none
	LastSyncedAt        *time.Time
	LastMessageAt       *time.Time
	UnreadCount          int
	LastReadMessageID    string
	LastReadAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// MessageDirection is inbound (received) or outbound (sent by us).
type MessageDirection string

const (
	DirectionInbound  MessageDirection = "inbound"
	DirectionOutbound MessageDirection = "outbound"
)

// MessageContentType is a coarse classification used for display, not full
// content transformation (explicitly a Non-goal).
type MessageContentType string

const (
	ContentTypeText  MessageContentType = "text"
	ContentTypeMedia MessageContentType = "media"
)

// SenderDescriptor is embedded redundantly in Message.Metadata so a UI can
// render a sender name even when ContactID is null.
type SenderDescriptor struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username,omitempty"`
}

// MessageMetadata is the JSON blob persisted alongside a Message.
type MessageMetadata struct {
	Sender SenderDescriptor `json:"sender"`
}

// Message is one row per upstream message, keyed by
// (source, conversation_id, external_message_id).
type Message struct {
	ID                string
	Source            string
	ConversationID    string
	ExternalMessageID string
	Direction         MessageDirection
	ContentType       MessageContentType
	Body              string
	SentAt            time.Time
	Status            string
	HasAttachments    bool
	Metadata          MessageMetadata
	ContactID         *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OnlineStatus mirrors Telegram's coarse UserStatus* variants.
type OnlineStatus string

const (
	OnlineStatusOnline    OnlineStatus = "online"
	OnlineStatusOffline   OnlineStatus = "offline"
	OnlineStatusRecently  OnlineStatus = "recently"
	OnlineStatusLastWeek  OnlineStatus = "last_week"
	OnlineStatusLastMonth OnlineStatus = "last_month"
	OnlineStatusUnknown   OnlineStatus = "unknown"
)

// SourceIdentity links one (source, external_id) pair to a Contact. A
// Contact may own several identities; the core only ever looks contacts
// up by identity, never by name.
type SourceIdentity struct {
	ID         string
	Source     string
	ExternalID string
	ContactID  string
}

// Contact is a CRM-side person record. Creation happens only during
// discovery of private chats, never from the Processor.
type Contact struct {
	ID           string
	DisplayName  string
	Username     string
	IsOnline     bool
	OnlineStatus OnlineStatus
	LastSeenAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LockType is one of the three nominal lease classes, each with a fixed
// default duration enforced by the Lock & State Service.
type LockType string

const (
	LockTypeListener LockType = "listener"
	LockTypeGlobal   LockType = "global"
	LockTypeSingle   LockType = "single"
)

// Lock is a (lock_type, lock_key) lease row. At most one row exists per
// key; rows with ExpiresAt in the past are semantically absent.
type Lock struct {
	ID          string
	LockType    LockType
	LockKey     string
	ProcessID   int
	Hostname    string
	AcquiredAt  time.Time
	HeartbeatAt time.Time
	ExpiresAt   time.Time
	Metadata    map[string]interface{}
}

// ListenerStatus enumerates the singleton Listener State row's lifecycle.
type ListenerStatus string

const (
	ListenerStarting   ListenerStatus = "starting"
	ListenerRunning    ListenerStatus = "running"
	ListenerRestarting ListenerStatus = "restarting"
	ListenerStopped    ListenerStatus = "stopped"
	ListenerError      ListenerStatus = "error"
	ListenerFailed     ListenerStatus = "failed"
)

// ListenerErrorEntry is one item in the rolling in-memory error list, the
// most recent 10 of which are persisted to Listener State.
type ListenerErrorEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// ListenerState is the single row keyed "singleton" reporting liveness.
type ListenerState struct {
	Status           ListenerStatus
	StartedAt        *time.Time
	LastHeartbeat    *time.Time
	MessagesReceived int64
	RecentErrors     []ListenerErrorEntry
	ProcessID        int
	Hostname         string
}

// AttachmentKind drives the Outbox Sender's dispatch matrix.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentVoice    AttachmentKind = "voice"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
	AttachmentAudio    AttachmentKind = "audio"
)

// Attachment describes an outbound file reference by storage key; the
// sender fetches bytes from the file store at send time.
type Attachment struct {
	Kind       AttachmentKind
	StorageKey string
	Caption    string
	MIME       string
	Name       string
}

// OutgoingStatus enumerates the outbox lifecycle:
// pending -> sending -> {sent | pending (retry) | failed}.
type OutgoingStatus string

const (
	OutgoingPending OutgoingStatus = "pending"
	OutgoingSending OutgoingStatus = "sending"
	OutgoingSent    OutgoingStatus = "sent"
	OutgoingFailed  OutgoingStatus = "failed"
)

// OutgoingMessage is a queued send request, claimed atomically by the
// Outbox Sender.
type OutgoingMessage struct {
	ID              string
	ConversationID  string
	Text            string
	ReplyToExternal string
	Attachment      *Attachment
	Status          OutgoingStatus
	ScheduledFor    *time.Time
	LockedBy        string
	LockedAt        *time.Time
	RetryCount      int
	MaxRetries      int
	ErrorMessage    string
	SentMessageID   string
	SentAt          *time.Time
	CreatedAt       time.Time
}

// MessageDescriptor is what every producer pushes into the Router's
// enqueue entry point: enough to project a store Message without the
// Router itself needing to know the upstream wire format.
type MessageDescriptor struct {
	SourceTag         string // "event_new", "event_edit", "active_poll", "full_catchup", "startup_catchup"
	ExternalChatID    string
	ExternalMessageID string
	Direction         MessageDirection
	ContentType       MessageContentType
	Body              string
	SentAt            time.Time
	HasAttachments    bool
	Sender            SenderDescriptor
	AutoCreate        bool
}

// DedupKey is the (chat, message) pair the Router's recent-set and the
// store's unique index both key on.
type DedupKey struct {
	ExternalChatID    string
	ExternalMessageID string
}
