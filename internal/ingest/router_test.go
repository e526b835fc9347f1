package ingest

import (
	"context"
	"testing"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/model"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{})
}

func TestRouterEnqueueDedupesByChatAndMessage(t *testing.T) {
	r := NewRouter(10, 100, 50, testLogger())
	ctx := context.Background()
	desc := model.MessageDescriptor{ExternalChatID: "1", ExternalMessageID: "1"}

	if err := r.Enqueue(ctx, desc); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := r.Enqueue(ctx, desc); err != nil {
		t.Fatalf("duplicate enqueue should be a no-op, got error: %v", err)
	}

	if got := r.Len(); got != 1 {
		t.Fatalf("expected 1 queued descriptor after dedup, got %d", got)
	}
}

func TestRouterEnqueueShedsLoadOnFullChannel(t *testing.T) {
	r := NewRouter(1, 100, 50, testLogger())
	ctx := context.Background()

	if err := r.Enqueue(ctx, model.MessageDescriptor{ExternalChatID: "1", ExternalMessageID: "1"}); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}

	err := r.Enqueue(ctx, model.MessageDescriptor{ExternalChatID: "2", ExternalMessageID: "1"})
	if err == nil {
		t.Fatal("expected an error when the channel is full")
	}
}

func TestRouterMarkSeenTrimsOldestEntries(t *testing.T) {
	r := NewRouter(100, 3, 1, testLogger())
	ctx := context.Background()

	// The fourth key pushes the set past maxSize (3), which trims it back
	// down to trimTo (1), keeping only the newest key.
	for i := 0; i < 4; i++ {
		desc := model.MessageDescriptor{ExternalChatID: "1", ExternalMessageID: itoaTest(i)}
		if err := r.Enqueue(ctx, desc); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	r.mu.Lock()
	size := len(r.seen)
	r.mu.Unlock()
	if size != 1 {
		t.Fatalf("expected dedup set trimmed to trimTo (1), got %d", size)
	}

	// The oldest key was evicted, so it is accepted and queued again.
	desc := model.MessageDescriptor{ExternalChatID: "1", ExternalMessageID: itoaTest(0)}
	if err := r.Enqueue(ctx, desc); err != nil {
		t.Fatalf("re-enqueue of evicted key: %v", err)
	}
	if got := r.Len(); got != 5 {
		t.Fatalf("expected the evicted key queued again (5 descriptors), got %d", got)
	}
}

func TestRouterDequeueReturnsOnContextCancel(t *testing.T) {
	r := NewRouter(1, 10, 5, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := r.Dequeue(ctx)
	if ok {
		t.Fatal("expected Dequeue to report no descriptor once the context is cancelled")
	}
}

func itoaTest(n int) string {
	digits := "0123456789"
	if n < len(digits) {
		return string(digits[n])
	}
	return "x"
}
