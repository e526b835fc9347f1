package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/tg"
)

// ErrMediaNotFound is returned when the referenced message or its media
// attachment doesn't exist, the §6 "/download" 404 branch. Any other
// error from FetchMedia is a live upstream/client problem (503).
var ErrMediaNotFound = errors.New("message or media not found")

// MediaFile is what FetchMedia returns: enough for the health surface's
// /download proxy to set a Content-Disposition header and stream bytes.
type MediaFile struct {
	Data []byte
	Name string
	MIME string
}

// FetchMedia re-fetches a single message by id and downloads its
// attached media, the §6 "/download" proxy's upstream half. It re-hits
// Telegram on every call rather than caching: attachments are requested
// rarely enough that this is simpler than maintaining a local cache with
// its own eviction policy.
func (c *Client) FetchMedia(ctx context.Context, peer tg.InputPeerClass, messageID int) (*MediaFile, error) {
	msg, err := c.fetchOneMessage(ctx, peer, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Media == nil {
		return nil, fmt.Errorf("message %d has no media: %w", messageID, ErrMediaNotFound)
	}

	loc, mime, name, err := mediaLocation(msg.Media)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := downloader.NewDownloader().Download(c.API(), loc).Stream(ctx, &buf); err != nil {
		return nil, translateErr(fmt.Sprint(peer), err)
	}

	return &MediaFile{Data: buf.Bytes(), Name: name, MIME: mime}, nil
}

func (c *Client) fetchOneMessage(ctx context.Context, peer tg.InputPeerClass, messageID int) (*tg.Message, error) {
	req := &tg.MessagesGetHistoryRequest{Peer: peer, OffsetID: messageID + 1, Limit: 1}
	resp, err := c.API().MessagesGetHistory(ctx, req)
	if err != nil {
		return nil, translateErr("fetch_message", err)
	}
	msgs, _ := historyMessages(resp)
	for _, m := range msgs {
		if msg, ok := m.(*tg.Message); ok && msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message %d not found: %w", messageID, ErrMediaNotFound)
}

// mediaLocation extracts a downloadable file location plus a best-effort
// MIME type and filename out of the handful of media kinds the outbox
// and inbound messages actually carry.
func mediaLocation(media tg.MessageMediaClass) (tg.InputFileLocationClass, string, string, error) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, "", "", fmt.Errorf("photo unavailable")
		}
		size := largestPhotoSize(photo.Sizes)
		return &tg.InputPhotoFileLocation{
			ID:            photo.ID,
			AccessHash:    photo.AccessHash,
			FileReference: photo.FileReference,
			ThumbSize:     size,
		}, "image/jpeg", fmt.Sprintf("photo_%d.jpg", photo.ID), nil
	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, "", "", fmt.Errorf("document unavailable")
		}
		name := documentFileName(doc.Attributes)
		return &tg.InputDocumentFileLocation{
			ID:            doc.ID,
			AccessHash:    doc.AccessHash,
			FileReference: doc.FileReference,
		}, doc.MimeType, name, nil
	default:
		return nil, "", "", fmt.Errorf("unsupported media kind")
	}
}

func largestPhotoSize(sizes []tg.PhotoSizeClass) string {
	best := ""
	bestArea := 0
	for _, s := range sizes {
		ps, ok := s.(*tg.PhotoSize)
		if !ok {
			continue
		}
		if area := ps.W * ps.H; area > bestArea {
			bestArea = area
			best = ps.Type
		}
	}
	return best
}

func documentFileName(attrs []tg.DocumentAttributeClass) string {
	for _, a := range attrs {
		if fn, ok := a.(*tg.DocumentAttributeFilename); ok {
			return fn.FileName
		}
	}
	return "attachment"
}
