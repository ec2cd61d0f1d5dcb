package tile

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is consulted before every tile fetch
type RateLimiter interface {
	BeforeFetch(ctx context.Context) error
}

// NoDelay never waits
type NoDelay struct{}

func (NoDelay) BeforeFetch(ctx context.Context) error { return ctx.Err() }

// RandomDelay sleeps a random duration in [Min, Max] between consecutive
// fetches. The first fetch is not delayed.
type RandomDelay struct {
	Min, Max time.Duration

	// Sleep and Rand default to a context-aware timer and math/rand
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func(n int64) int64

	started bool
}

// NewRandomDelay returns a limiter waiting between min and max
func NewRandomDelay(min, max time.Duration) *RandomDelay {
	if max < min {
		min, max = max, min
	}
	return &RandomDelay{Min: min, Max: max}
}

func (r *RandomDelay) BeforeFetch(ctx context.Context) error {
	if !r.started {
		r.started = true
		return ctx.Err()
	}
	return r.sleep(ctx, r.next())
}

func (r *RandomDelay) next() time.Duration {
	span := int64(r.Max - r.Min)
	if span <= 0 {
		return r.Min
	}
	rnd := r.Rand
	if rnd == nil {
		rnd = rand.Int63n
	}
	return r.Min + time.Duration(rnd(span+1))
}

func (r *RandomDelay) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
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

// TokenBucket limits fetches to rps requests per second with the given burst
type TokenBucket struct {
	Limiter *rate.Limiter
}

// NewTokenBucket creates a token bucket limiter
func NewTokenBucket(rps float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{Limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *TokenBucket) BeforeFetch(ctx context.Context) error {
	return t.Limiter.Wait(ctx)
}
