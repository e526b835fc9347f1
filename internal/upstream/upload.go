package upstream

import (
	"context"
	"crypto/rand"
	"encoding/binary"

	"github.com/gotd/td/telegram/uploader"
)

// uploaderFor builds a gotd/td file uploader bound to this client's API,
// the idiomatic way gotd/td examples turn raw bytes into an InputFile
// before attaching it to a media message.
func uploaderFor(c *Client) *uploader.Uploader {
	return uploader.NewUploader(c.API())
}

// randomID generates the random_id MessagesSendMessage/SendMedia require
// for de-duplicating retried sends on Telegram's side.
func randomID() int64 {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return int64(binary.BigEndian.Uint64(buf[:]))
}
