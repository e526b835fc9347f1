package discovery

import (
	"context"
	"fmt"
	"time"
)

// RunFullCatchup runs the full catch-up loop (§4.E producer 3): every
// interval, walk up to fullCatchupLimit conversations ordered by
// last_synced_at ascending (staler conversations first) and pull up to
// catchupMessagesPerChat messages each. The loop writes nothing back
// itself; last_synced_at advances when the Processor inserts a message.
func (s *Service) RunFullCatchup(ctx context.Context, interval time.Duration) {
	runLoop(ctx, fullCatchupStartupOffset, interval, s.log, "full_catchup", s.fullCatchupOnce)
}

func (s *Service) fullCatchupOnce(ctx context.Context) error {
	candidates, err := s.db.FullCatchupCandidates(ctx, fullCatchupLimit)
	if err != nil {
		return fmt.Errorf("full catchup candidates: %w", err)
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
		if err := s.catchUpOne(ctx, peer, checkpoint(conv.LastSyncedMessageID), catchupMessagesPerChat, "full_catchup"); err != nil {
			sleepOffFloodWait(ctx, s.log, "full_catchup", conv.ExternalChatID, err)
		}
		if err := s.client.Pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
