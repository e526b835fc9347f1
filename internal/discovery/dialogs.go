package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/tg"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/ingest"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/upstream"
)

const (
	dialogDiscoveryStartupOffset = 30 * time.Second
	fullCatchupStartupOffset     = 180 * time.Second

	seedMessageCount       = 50
	catchupMessagesPerChat = 10
	activePollLimit        = 100
	fullCatchupLimit       = 200
	emptyConversationLimit = 100
	peerCacheTTL           = 5 * time.Minute
)

// Service runs the three background catch-up loops against a shared
// upstream client, database, and Router. Contact identities are resolved
// or created here and only here (§4.D "contact identity resolved at
// discovery time only"). It also serves as the health surface's
// PeerResolver, since it already maintains the dialog-to-peer cache the
// /download proxy needs.
type Service struct {
	db         *pg.Database
	client     *upstream.Client
	router     *ingest.Router
	log        *logger.Logger
	invalidate func(externalChatID string)

	mu        sync.Mutex
	peerCache map[string]tg.InputPeerClass
	cachedAt  time.Time
}

// New builds a discovery Service. invalidate, when non-nil, is called
// whenever this Service creates or reconciles a conversation row out of
// band from the Processor, so the Processor's conversation-id cache
// (§5 shared in-memory state (a)) never serves a stale entry.
func New(db *pg.Database, client *upstream.Client, router *ingest.Router, log *logger.Logger, invalidate func(externalChatID string)) *Service {
	return &Service{db: db, client: client, router: router, log: log.WithComponent("discovery"), invalidate: invalidate}
}

// ResolvePeer implements internal/health.PeerResolver.
func (s *Service) ResolvePeer(ctx context.Context, externalChatID string) (tg.InputPeerClass, error) {
	peers, err := s.peerIndex(ctx)
	if err != nil {
		return nil, err
	}
	peer, ok := peers[externalChatID]
	if !ok {
		return nil, fmt.Errorf("no visible dialog for chat %s", externalChatID)
	}
	return peer, nil
}

// RunDialogDiscovery runs the dialog-discovery loop: enumerate up to
// fullCatchupLimit dialogs, create-or-reconcile each one's conversation
// row, create a contact for
// newly-seen private chats, and seed the most recent messages.
func (s *Service) RunDialogDiscovery(ctx context.Context, interval time.Duration) {
	runLoop(ctx, dialogDiscoveryStartupOffset, interval, s.log, "dialog_discovery", s.discoverOnce)
}

func (s *Service) discoverOnce(ctx context.Context) error {
	dialogs, err := s.client.ListDialogs(ctx, fullCatchupLimit)
	if err != nil {
		return fmt.Errorf("list dialogs: %w", err)
	}

	for _, d := range dialogs {
		conv, err := s.db.CreateConversation(ctx, ingest.Source, d.ExternalChatID, d.Title, d.Kind)
		if err != nil {
			s.log.LogError(ctx, err, "create conversation failed", "external_chat_id", d.ExternalChatID)
			continue
		}
		if s.invalidate != nil {
			s.invalidate(d.ExternalChatID)
		}

		if d.Kind == model.ConversationPrivate {
			if err := s.ensureContact(ctx, d); err != nil {
				s.log.LogError(ctx, err, "ensure contact failed", "external_chat_id", d.ExternalChatID)
			}
		}

		if err := s.db.ReconcileDialogState(ctx, conv.ID, d.UnreadCount, itoa(d.TopMessageID)); err != nil {
			s.log.LogError(ctx, err, "reconcile dialog state failed", "external_chat_id", d.ExternalChatID)
		} else if s.invalidate != nil {
			s.invalidate(d.ExternalChatID)
		}

		if conv.LastSyncedMessageID == "" {
			if err := s.seed(ctx, d.InputPeer, seedMessageCount); err != nil {
				sleepOffFloodWait(ctx, s.log, "dialog_discovery", d.ExternalChatID, err)
			}
		}

		if err := s.client.Pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ensureContact(ctx context.Context, d upstream.DialogSummary) error {
	externalUserID := d.ExternalChatID
	_, err := s.db.ResolveContactIDByIdentity(ctx, ingest.Source, externalUserID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pg.ErrNotFound) {
		return err
	}
	_, err = s.db.CreateContactWithIdentity(ctx, ingest.Source, externalUserID, d.Title, "")
	return err
}

// seed pulls the most recent `limit` messages for a freshly-discovered
// conversation and pushes them through the Router as startup_catchup
// descriptors, AutoCreate=false since the conversation already exists.
func (s *Service) seed(ctx context.Context, peer tg.InputPeerClass, limit int) error {
	descriptors, err := s.client.FetchHistory(ctx, peer, 0, limit)
	if err != nil {
		return fmt.Errorf("fetch seed history: %w", err)
	}
	for _, desc := range descriptors {
		desc.SourceTag = "startup_catchup"
		if err := s.router.Enqueue(ctx, desc); err != nil {
			s.log.LogError(ctx, err, "seed enqueue failed", "external_chat_id", desc.ExternalChatID)
		}
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}
