// Package discovery implements the three background catch-up producers
// spec.md §4.E describes: dialog discovery, active-conversation polling,
// and full catch-up, plus the startup-only empty-conversations healer.
// Each runs as one cooperative task on its own ticker and feeds the
// Router exactly like the realtime dispatcher does.
package discovery

import (
	"context"
	"time"

	"github.com/sagarrabadia33/telegram-sync-worker/internal/coreerrors"
	"github.com/sagarrabadia33/telegram-sync-worker/internal/logger"
)

// runLoop waits startupOffset once, invokes fn, then repeats fn every
// period until ctx is cancelled. Every discovery loop shares this shape;
// only the offset/period and fn differ (§4.E "each loop has its own
// startup offset so they don't all hit the upstream API at once").
func runLoop(ctx context.Context, startupOffset, period time.Duration, log *logger.Logger, name string, fn func(ctx context.Context) error) {
	timer := time.NewTimer(startupOffset)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	runOnce(ctx, log, name, fn)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, log, name, fn)
		}
	}
}

// sleepOffFloodWait is the per-conversation counterpart to runOnce's
// top-level retry: when a single chat's catch-up call comes back flood-
// waited, the offending loop must still "sleep exactly that long... then
// resume without advancing checkpoints" (§7) rather than hammering the
// next candidate immediately. It logs and returns normally for any other
// error, since a single bad chat (access denied, transient store error)
// shouldn't stall the whole pass.
func sleepOffFloodWait(ctx context.Context, log *logger.Logger, name, externalChatID string, err error) {
	if err == nil {
		return
	}
	if wait, ok := coreerrors.AsFloodWait(err); ok {
		log.Warn(name+" chat hit upstream flood wait, sleeping before next candidate", "external_chat_id", externalChatID, "wait", wait)
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		return
	}
	log.LogError(ctx, err, name+" catch-up failed", "external_chat_id", externalChatID)
}

// runOnce invokes fn, retrying in place on an UpstreamFloodWaitError: §7
// "sleep exactly that long, do not advance checkpoint, retry same unit of
// work" — a flood wait must not just fall through to the loop's regular
// ticker period, which could be minutes away.
func runOnce(ctx context.Context, log *logger.Logger, name string, fn func(ctx context.Context) error) {
	for {
		err := fn(ctx)
		if err == nil {
			return
		}

		wait, ok := coreerrors.AsFloodWait(err)
		if !ok {
			log.LogError(ctx, err, name+" iteration failed")
			return
		}

		log.Warn(name+" hit upstream flood wait, sleeping before retry", "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
