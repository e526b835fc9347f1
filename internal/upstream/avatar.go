package upstream

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

// FetchPeerPhoto downloads a peer's current profile photo (user avatar or
// group/channel picture), used by cmd/avatarsync. Telegram peers that
// never set a photo return an error; callers treat that as "nothing to
// sync" rather than a failure.
func (c *Client) FetchPeerPhoto(ctx context.Context, peer tg.InputPeerClass) ([]byte, error) {
	loc := &tg.InputPeerPhotoFileLocation{Peer: peer, Big: true}
	var buf bytes.Buffer
	if _, err := downloader.NewDownloader().Download(c.API(), loc).Stream(ctx, &buf); err != nil {
		return nil, translateErr(fmt.Sprint(peer), err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("peer has no profile photo")
	}
	return buf.Bytes(), nil
}
