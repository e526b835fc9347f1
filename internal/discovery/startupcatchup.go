package discovery

import (
	"context"
	"fmt"
)

const (
	startupCatchupConversationLimit = 50
	startupCatchupMessagesPerChat   = 200
)

// RunStartupCatchupOnce runs §4.C producer 4 ("Startup catch-up"): once at
// process start, pull up to startupCatchupConversationLimit conversations
// (same staleness ordering as the full catch-up loop) and request up to
// startupCatchupMessagesPerChat messages each. This is a larger, one-shot
// sweep distinct from the recurring full-catchup loop's smaller per-chat
// cap, meant to close any gap accumulated while the process was down.
func (s *Service) RunStartupCatchupOnce(ctx context.Context) error {
	candidates, err := s.db.FullCatchupCandidates(ctx, startupCatchupConversationLimit)
	if err != nil {
		return fmt.Errorf("startup catchup candidates: %w", err)
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
			continue
		}
		if err := s.catchUpOne(ctx, peer, checkpoint(conv.LastSyncedMessageID), startupCatchupMessagesPerChat, "startup_catchup"); err != nil {
			sleepOffFloodWait(ctx, s.log, "startup_catchup", conv.ExternalChatID, err)
		}
		if err := s.client.Pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
