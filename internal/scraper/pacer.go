package scraper

import (
	"context"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound requests. Callers Wait before every request, so
// consecutive requests are at least min apart, plus a random extra delay of
// up to max-min. The first Wait on a fresh Pacer only adds the jitter.
type Pacer struct {
	limiter *rate.Limiter
	spread  time.Duration
	jitter  func(n int64) int64
}

// NewPacer returns a Pacer. A zero min disables the bucket; max below min
// disables jitter.
func NewPacer(min, max time.Duration) *Pacer {
	limit := rate.Inf
	if min > 0 {
		limit = rate.Every(min)
	}
	spread := max - min
	if spread < 0 {
		spread = 0
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		spread:  spread,
		jitter:  rand.Int64N,
	}
}

// Wait blocks until the next request may be sent or ctx ends. The jitter
// runs first so the request follows the bucket release immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.spread > 0 {
		d := time.Duration(p.jitter(int64(p.spread) + 1))
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return p.limiter.Wait(ctx)
}
