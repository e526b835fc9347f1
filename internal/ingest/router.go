// Package ingest implements the single-consumer ingestion pipeline
// spec.md §4.C/§4.D describes: a Router that fans every producer into
// one bounded FIFO channel with a trimmed in-memory dedup set, and a
// Processor that is the sole writer of messages.
package ingest

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

// Router is the fan-in point every producer (realtime dispatcher, active
// poll, full catch-up, dialog discovery seeding) calls Enqueue on. It
// owns the single bounded channel the Processor drains and a recent-keys
// dedup set trimmed once it grows past a configured size (§4.C).
type Router struct {
	ch  chan model.MessageDescriptor
	log *logger.Logger

	mu      sync.Mutex
	seen    map[model.DedupKey]struct{}
	order   *list.List // oldest-first model.DedupKey insertion order, for trimming
	maxSize int
	trimTo  int
}

// NewRouter builds a Router with the given channel buffer size and
// dedup bounds.
func NewRouter(bufferSize, dedupMaxSize, dedupTrimTo int, log *logger.Logger) *Router {
	return &Router{
		ch:      make(chan model.MessageDescriptor, bufferSize),
		log:     log.WithComponent("router"),
		seen:    make(map[model.DedupKey]struct{}),
		order:   list.New(),
		maxSize: dedupMaxSize,
		trimTo:  dedupTrimTo,
	}
}

// Enqueue implements the MessageSink interface internal/upstream and the
// discovery loops depend on: a synchronous dedup check, then a
// non-blocking send into the bounded channel. A full channel (the
// Processor is behind) drops the descriptor rather than blocking the
// caller indefinitely, logging at warn so sustained backpressure is
// visible (§4.C "the channel is bounded; a full channel sheds load").
func (r *Router) Enqueue(ctx context.Context, desc model.MessageDescriptor) error {
	key := model.DedupKey{ExternalChatID: desc.ExternalChatID, ExternalMessageID: desc.ExternalMessageID}

	if r.markSeen(key) {
		return nil
	}

	select {
	case r.ch <- desc:
		return nil
	default:
		r.log.Warn("ingest queue full, dropping descriptor", "external_chat_id", desc.ExternalChatID, "source_tag", desc.SourceTag)
		return fmt.Errorf("ingest queue full for chat %s", desc.ExternalChatID)
	}
}

// markSeen reports whether key was already seen, recording it if not.
// Once the set passes maxSize it is trimmed back down to trimTo by
// evicting the oldest entries, so memory is bounded without ever
// requiring a full flush (§4.C "trimmed, never cleared outright").
func (r *Router) markSeen(key model.DedupKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[key]; ok {
		return true
	}
	r.seen[key] = struct{}{}
	r.order.PushBack(key)

	if len(r.seen) > r.maxSize {
		for len(r.seen) > r.trimTo {
			front := r.order.Front()
			if front == nil {
				break
			}
			r.order.Remove(front)
			delete(r.seen, front.Value.(model.DedupKey))
		}
	}
	return false
}

// Dequeue blocks until a descriptor is available or ctx is cancelled.
// The Processor is the sole caller.
func (r *Router) Dequeue(ctx context.Context) (model.MessageDescriptor, bool) {
	select {
	case desc := <-r.ch:
		return desc, true
	case <-ctx.Done():
		return model.MessageDescriptor{}, false
	}
}

// Len reports the current queue depth.
func (r *Router) Len() int {
	return len(r.ch)
}
