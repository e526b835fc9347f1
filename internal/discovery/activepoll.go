package discovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gotd/td/tg"
)

// RunActivePoll runs the active-conversation poll loop (§4.E producer 2):
// every interval, re-fetch the top activePollLimit most-recently-active
// conversations and pull up to catchupMessagesPerChat new messages each.
func (s *Service) RunActivePoll(ctx context.Context, interval time.Duration) {
	runLoop(ctx, 0, interval, s.log, "active_poll", s.activePollOnce)
}

func (s *Service) activePollOnce(ctx context.Context) error {
	candidates, err := s.db.ActivePollCandidates(ctx, activePollLimit)
	if err != nil {
		return fmt.Errorf("active poll candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	peers, err := s.peerIndex(ctx)
	if err != nil {
		return fmt.Errorf("build peer index: %w", err)
	}

	for _, conv := range candidates {
		peer, ok := peers[conv.ExternalChatID]
		if !ok {
			continue // no longer a visible dialog; skip rather than fail the whole pass
		}
		if err := s.catchUpOne(ctx, peer, checkpoint(conv.LastSyncedMessageID), catchupMessagesPerChat, "active_poll"); err != nil {
			sleepOffFloodWait(ctx, s.log, "active_poll", conv.ExternalChatID, err)
		}
		if err := s.client.Pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// peerIndex serves a TTL-bounded cache of external-chat-id -> InputPeer,
// the cheapest way to recover an InputPeer for a conversation the store
// only remembers by (source, external_chat_id).
func (s *Service) peerIndex(ctx context.Context) (map[string]tg.InputPeerClass, error) {
	s.mu.Lock()
	stale := s.peerCache == nil || time.Since(s.cachedAt) > peerCacheTTL
	s.mu.Unlock()
	if !stale {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.peerCache, nil
	}

	dialogs, err := s.client.ListDialogs(ctx, fullCatchupLimit)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]tg.InputPeerClass, len(dialogs))
	for _, d := range dialogs {
		idx[d.ExternalChatID] = d.InputPeer
	}

	s.mu.Lock()
	s.peerCache = idx
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return idx, nil
}

// catchUpOne fetches messages newer than minID (the conversation's
// checkpoint) and enqueues them. Shared by active poll, full catch-up,
// and startup catch-up, which differ only in candidate set and limit.
func (s *Service) catchUpOne(ctx context.Context, peer tg.InputPeerClass, minID, limit int, sourceTag string) error {
	descriptors, err := s.client.FetchHistory(ctx, peer, minID, limit)
	if err != nil {
		return err
	}
	for _, desc := range descriptors {
		desc.SourceTag = sourceTag
		if err := s.router.Enqueue(ctx, desc); err != nil {
			s.log.LogError(ctx, err, "catch-up enqueue failed", "external_chat_id", desc.ExternalChatID)
		}
	}
	return nil
}

// checkpoint parses a conversation's stringified last_synced_message_id,
// treating "" or a malformed value as no checkpoint (0), which FetchHistory
// takes as "no lower bound".
func checkpoint(lastSyncedMessageID string) int {
	if lastSyncedMessageID == "" {
		return 0
	}
	n, err := strconv.Atoi(lastSyncedMessageID)
	if err != nil {
		return 0
	}
	return n
}
