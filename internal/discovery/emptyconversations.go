package discovery

import (
	"context"
	"fmt"
)

// RunEmptyConversationsOnce heals conversations that were discovered but
// never seeded (a crash between create and seed, or a past bug) by
// fetching the most recent seedMessageCount messages for each one. §4.E
// "sync_empty_conversations" is a startup-only pass, not a ticker loop.
func (s *Service) RunEmptyConversationsOnce(ctx context.Context) error {
	candidates, err := s.db.EmptyConversations(ctx, emptyConversationLimit)
	if err != nil {
		return fmt.Errorf("empty conversations: %w", err)
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
		if err := s.seed(ctx, peer, seedMessageCount); err != nil {
			sleepOffFloodWait(ctx, s.log, "empty_conversations", conv.ExternalChatID, err)
		}
		if err := s.client.Pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
