package upstream

import (
	"context"
	"math/rand"
	"time"
)

// Pacer sleeps a random duration in [min,max) before returning: the
// inter-call delay spec.md §5's "Rate limiting" section requires between
// successive upstream calls issued by the discovery and catch-up loops,
// on top of the flood-wait/rate-limit middleware already wrapping every
// RPC (see client.go).
type Pacer struct {
	min, max time.Duration
}

// NewPacer builds a Pacer over [min,max). max <= min degenerates to a
// fixed delay of min.
func NewPacer(min, max time.Duration) *Pacer {
	return &Pacer{min: min, max: max}
}

// Wait blocks for the pacing delay or until ctx is cancelled.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.min
	if p.max > p.min {
		d += time.Duration(rand.Int63n(int64(p.max - p.min)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
