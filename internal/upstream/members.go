package upstream

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
)

// FetchMemberCount resolves a group/supergroup/channel's current member
// count, used by cmd/membercount. Private chats have no member count and
// are rejected by the caller before this is ever reached.
func (c *Client) FetchMemberCount(ctx context.Context, peer tg.InputPeerClass) (int, error) {
	switch p := peer.(type) {
	case *tg.InputPeerChannel:
		full, err := c.API().ChannelsGetFullChannel(ctx, &tg.InputChannel{
			ChannelID:  p.ChannelID,
			AccessHash: p.AccessHash,
		})
		if err != nil {
			return 0, translateErr(fmt.Sprint(peer), err)
		}
		channelFull, ok := full.FullChat.(*tg.ChannelFull)
		if !ok {
			return 0, fmt.Errorf("unexpected full chat type for channel")
		}
		count, _ := channelFull.GetParticipantsCount()
		return count, nil
	case *tg.InputPeerChat:
		full, err := c.API().MessagesGetFullChat(ctx, p.ChatID)
		if err != nil {
			return 0, translateErr(fmt.Sprint(peer), err)
		}
		chatFull, ok := full.FullChat.(*tg.ChatFull)
		if !ok {
			return 0, fmt.Errorf("unexpected full chat type for chat")
		}
		if participants, ok := chatFull.Participants.(*tg.ChatParticipants); ok {
			return len(participants.Participants), nil
		}
		return 0, fmt.Errorf("chat participants unavailable")
	default:
		return 0, fmt.Errorf("peer kind has no member count")
	}
}
