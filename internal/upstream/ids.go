package upstream

import (
	"strconv"
	"time"

	"github.com/gotd/td/tg"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// itoa is the shared int->external-id formatter; every external message
// id in the store is a decimal string (§3 "stringified integer
// checkpoint"), while external chat ids carry a "kind:" prefix.
func itoa(n int) string {
	return strconv.Itoa(n)
}

// peerChatID normalizes any tg.PeerClass to the "kind:id" external chat
// id convention the store keys conversations on.
func peerChatID(peer tg.PeerClass) string {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return userChatID(p.UserID)
	case *tg.PeerChat:
		return "chat:" + itoa(p.ChatID)
	case *tg.PeerChannel:
		return channelChatID(p.ChannelID)
	default:
		return "unknown:0"
	}
}

func userChatID(id int64) string   { return "user:" + strconv.FormatInt(id, 10) }
func channelChatID(id int64) string { return "channel:" + strconv.FormatInt(id, 10) }

// senderDescriptorOf resolves a message's FromID against the update's
// entity bag, falling back to a bare external id if the sender wasn't
// included (service updates, anonymous admins).
func senderDescriptorOf(entities tg.Entities, from tg.PeerClass) model.SenderDescriptor {
	if from == nil {
		return model.SenderDescriptor{}
	}
	peerUser, ok := from.(*tg.PeerUser)
	if !ok {
		return model.SenderDescriptor{ExternalID: peerChatID(from)}
	}
	user, ok := entities.Users[peerUser.UserID]
	if !ok {
		return model.SenderDescriptor{ExternalID: userChatID(peerUser.UserID)}
	}
	return model.SenderDescriptor{
		ExternalID:  userChatID(user.ID),
		DisplayName: displayName(user.FirstName, user.LastName),
		Username:    user.Username,
	}
}

func displayName(first, last string) string {
	if last == "" {
		return first
	}
	if first == "" {
		return last
	}
	return first + " " + last
}

// mapUserStatus maps Telegram's coarse UserStatus* variants to
// model.OnlineStatus (§9 "Presence tracking").
func mapUserStatus(status tg.UserStatusClass) (model.OnlineStatus, *time.Time) {
	switch s := status.(type) {
	case *tg.UserStatusOnline:
		t := time.Unix(int64(s.Expires), 0).UTC()
		return model.OnlineStatusOnline, &t
	case *tg.UserStatusOffline:
		t := time.Unix(int64(s.WasOnline), 0).UTC()
		return model.OnlineStatusOffline, &t
	case *tg.UserStatusRecently:
		return model.OnlineStatusRecently, nil
	case *tg.UserStatusLastWeek:
		return model.OnlineStatusLastWeek, nil
	case *tg.UserStatusLastMonth:
		return model.OnlineStatusLastMonth, nil
	default:
		return model.OnlineStatusUnknown, nil
	}
}
