package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gotd/td/tg"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/coreerrors"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/storage/pg"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/upstream"
)

const peerCacheTTL = 5 * time.Minute

// Sender implements the outbox poll loop (§4.F): claim one pending row,
// resolve its InputPeer, dispatch through the upstream dispatch matrix,
// and record success or failure.
type Sender struct {
	db       *pg.Database
	client   *upstream.Client
	store    upstream.FileStore
	log      *logger.Logger
	lockedBy string

	mu        sync.Mutex
	peerCache map[string]tg.InputPeerClass
	cachedAt  time.Time
}

// NewSender builds a Sender. lockedBy identifies this process in the
// outbox's locked_by column (hostname:pid, matching the lock service's
// own holder convention).
func NewSender(db *pg.Database, client *upstream.Client, store upstream.FileStore, lockedBy string, log *logger.Logger) *Sender {
	return &Sender{db: db, client: client, store: store, lockedBy: lockedBy, log: log.WithComponent("outbox_sender")}
}

// Run polls for claimable outgoing messages every period until ctx is
// cancelled (§4.F "poll interval: 2 s").
func (s *Sender) Run(ctx context.Context, period, staleLockAfter time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainOnce(ctx, staleLockAfter)
		}
	}
}

// drainOnce claims and sends messages until the queue is empty for this
// pass, rather than handling only one row per tick.
func (s *Sender) drainOnce(ctx context.Context, staleLockAfter time.Duration) {
	for {
		msg, err := s.db.ClaimNextOutgoingMessage(ctx, s.lockedBy, staleLockAfter)
		if err == pg.ErrNotFound {
			return
		}
		if err != nil {
			s.log.LogError(ctx, err, "claim outgoing message failed")
			return
		}

		if err := s.dispatch(ctx, msg); err != nil {
			s.log.LogError(ctx, err, "outgoing send failed", "outbox_id", msg.ID)
			if markErr := s.db.MarkOutgoingFailure(ctx, msg.ID, &coreerrors.OutboxSendFailureError{OutboxID: msg.ID, Err: err}); markErr != nil {
				s.log.LogError(ctx, markErr, "mark outgoing failure failed", "outbox_id", msg.ID)
			}
			continue
		}
	}
}

func (s *Sender) dispatch(ctx context.Context, msg *model.OutgoingMessage) error {
	conv, err := s.db.GetConversationByID(ctx, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("resolve conversation: %w", err)
	}

	peer, err := s.resolvePeer(ctx, conv.ExternalChatID)
	if err != nil {
		return fmt.Errorf("resolve peer: %w", err)
	}

	result, err := s.client.SendMessage(ctx, peer, msg, s.store)
	if err != nil {
		return err
	}

	if err := s.db.MarkOutgoingSent(ctx, msg.ID, result.SentMessageID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// resolvePeer serves InputPeerClass lookups from a TTL-bounded cache so
// the sender isn't re-listing dialogs for every single claimed message.
func (s *Sender) resolvePeer(ctx context.Context, externalChatID string) (tg.InputPeerClass, error) {
	s.mu.Lock()
	stale := time.Since(s.cachedAt) > peerCacheTTL || s.peerCache == nil
	s.mu.Unlock()

	if stale {
		if err := s.refreshPeerCache(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	peer, ok := s.peerCache[externalChatID]
	if !ok {
		return nil, fmt.Errorf("no visible dialog for chat %s", externalChatID)
	}
	return peer, nil
}

func (s *Sender) refreshPeerCache(ctx context.Context) error {
	dialogs, err := s.client.ListDialogs(ctx, 500)
	if err != nil {
		return err
	}
	idx := make(map[string]tg.InputPeerClass, len(dialogs))
	for _, d := range dialogs {
		idx[d.ExternalChatID] = d.InputPeer
	}

	s.mu.Lock()
	s.peerCache = idx
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return nil
}
