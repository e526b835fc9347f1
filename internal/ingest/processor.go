package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/coreerrors"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
)

// Source is the fixed store-level source tag every conversation/message
// row is keyed under; this worker only ever talks to one upstream.
const Source = "telegram"

// MetricsSink receives the liveness/metric callback §4.D step 7 requires
// on every actual insert; internal/lockservice.Service implements it by
// bumping the singleton Listener State row's messages_received counter.
type MetricsSink interface {
	IncrementMessages(ctx context.Context, n int64) error
}

// Processor is the sole writer of inbound messages (§4.D); it also
// advances the conversation checkpoint on insert, while Discovery and
// ReadState write conversation rows directly. It drains Router.Dequeue
// in a single goroutine; every store call here runs sequentially, which
// is what makes the idempotent insert race-free without row-level
// locking on the hot path.
type Processor struct {
	db      *pg.Database
	router  *Router
	metrics MetricsSink
	log     *logger.Logger

	// convCache mirrors §5's "(a) the conversation-id cache": a
	// best-effort map from external_chat_id to the last-known
	// conversation row, populated by both this Processor and (via
	// InvalidateConversation) the Discovery loops' create path, so a
	// store round-trip is only needed on first sight of a chat.
	convMu    sync.Mutex
	convCache map[string]*model.Conversation
}

// NewProcessor builds a Processor bound to router. metrics may be nil in
// tests that don't exercise the insert path's liveness callback.
func NewProcessor(db *pg.Database, router *Router, metrics MetricsSink, log *logger.Logger) *Processor {
	return &Processor{db: db, router: router, metrics: metrics, log: log.WithComponent("processor"), convCache: make(map[string]*model.Conversation)}
}

// InvalidateConversation drops any cached row for externalChatID, called
// by Discovery whenever it creates or reconciles a conversation out of
// band from the Processor so a stale cache entry never masks a fresh
// checkpoint or sync_disabled flip.
func (p *Processor) InvalidateConversation(externalChatID string) {
	p.convMu.Lock()
	delete(p.convCache, externalChatID)
	p.convMu.Unlock()
}

// Run drains descriptors until ctx is cancelled, the coordinator's
// single cooperative consumer task: exactly one goroutine writes
// messages.
func (p *Processor) Run(ctx context.Context) {
	for {
		desc, ok := p.router.Dequeue(ctx)
		if !ok {
			return
		}
		if err := p.process(ctx, desc); err != nil {
			p.log.LogError(ctx, err, "process descriptor failed", "external_chat_id", desc.ExternalChatID, "source_tag", desc.SourceTag)
		}
	}
}

// process implements §4.D steps 1-7 for one descriptor.
func (p *Processor) process(ctx context.Context, desc model.MessageDescriptor) error {
	conv, err := p.resolveConversation(ctx, desc)
	if err != nil {
		var skipped *coreerrors.PrepareSkippedError
		if errors.As(err, &skipped) {
			p.log.Debug("skipped descriptor", "reason", skipped.Reason)
			return nil
		}
		return err
	}
	if conv.SyncDisabled {
		p.log.Debug("skipped descriptor", "reason", "sync_disabled", "external_chat_id", desc.ExternalChatID)
		return nil
	}

	contactID, err := p.resolveContactID(ctx, desc.Sender.ExternalID)
	if err != nil {
		return fmt.Errorf("resolve contact: %w", err)
	}

	msg := project(desc, conv.ID, contactID)

	// Every descriptor attempts the insert first, edits included: an edit
	// for a message this store has never seen materializes it (§9 open
	// question, resolved as "insert on first sight regardless of event
	// kind" to match original_source's enqueue-then-process behavior).
	// Only a conflict on the natural key falls through to the edit path,
	// which is restricted to body+metadata and leaves unread_count alone.
	_, inserted, err := p.db.InsertMessageIfNotExists(ctx, msg)
	if err != nil {
		return &coreerrors.StoreTransientError{Op: "insert_message", Err: err}
	}

	if inserted {
		if err := p.db.ApplyInboundInsertUpdate(ctx, conv.ID, desc.ExternalMessageID, desc.SentAt, desc.Direction); err != nil {
			return &coreerrors.StoreTransientError{Op: "apply_inbound_insert_update", Err: err}
		}
		// §4.D step 7: "on actual insert, call the liveness/metric
		// callbacks." A failure here never rolls back the message write;
		// it's a secondary counter, not part of the insert's invariants.
		if p.metrics != nil {
			if err := p.metrics.IncrementMessages(ctx, 1); err != nil {
				p.log.LogError(ctx, err, "increment messages_received failed")
			}
		}
		return nil
	}

	if desc.SourceTag != "event_edit" {
		// Natural-key conflict on a non-edit event: another producer
		// already landed this message. Not an error, just redundant work
		// from a second producer observing the same event (§4.D step 4).
		return nil
	}

	if err := p.db.UpdateMessageOnEdit(ctx, Source, conv.ID, desc.ExternalMessageID, msg.Body, msg.Metadata); err != nil {
		return &coreerrors.StoreTransientError{Op: "update_message_on_edit", Err: err}
	}
	return nil
}

// resolveConversation looks a conversation up by natural key, trying the
// in-process cache first (§4.D step 1 "cache lookup by external_chat_id;
// on miss, read the store"), creating it when the descriptor is allowed
// to (realtime events only; catch-up producers never create
// conversations they didn't already discover).
func (p *Processor) resolveConversation(ctx context.Context, desc model.MessageDescriptor) (*model.Conversation, error) {
	p.convMu.Lock()
	cached, ok := p.convCache[desc.ExternalChatID]
	p.convMu.Unlock()
	if ok {
		return cached, nil
	}

	conv, err := p.db.GetConversationByExternalChatID(ctx, Source, desc.ExternalChatID)
	if err == nil {
		p.cacheConversation(conv)
		return conv, nil
	}
	if !errors.Is(err, pg.ErrNotFound) {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	if !desc.AutoCreate {
		return nil, &coreerrors.PrepareSkippedError{Reason: "conversation not yet discovered"}
	}
	conv, err = p.db.CreateConversation(ctx, Source, desc.ExternalChatID, "", model.ConversationPrivate)
	if err != nil {
		return nil, err
	}
	p.cacheConversation(conv)
	return conv, nil
}

func (p *Processor) cacheConversation(conv *model.Conversation) {
	p.convMu.Lock()
	p.convCache[conv.ExternalChatID] = conv
	p.convMu.Unlock()
}

// resolveContactID looks the sender up by source identity; an unknown
// sender (never resolved via discovery) yields a nil ContactID rather
// than an error — the Processor never creates contacts itself (§4.D
// "contact identity resolved at discovery time only").
func (p *Processor) resolveContactID(ctx context.Context, externalID string) (*string, error) {
	if externalID == "" {
		return nil, nil
	}
	id, err := p.db.ResolveContactIDByIdentity(ctx, Source, externalID)
	if errors.Is(err, pg.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}
