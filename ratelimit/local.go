package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrEthical07/authcore"
)

// Local is an in-process token bucket per key: MaxAttempts burst, refilled
// at MaxAttempts per Window. It suits single-instance deployments; counters
// are not shared between processes.
type Local struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocal validates cfg. Prefix is ignored.
func NewLocal(cfg Config) (*Local, error) {
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("%w: MaxAttempts must be >= 1", ErrInvalidConfig)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: Window must be > 0", ErrInvalidConfig)
	}
	return &Local{
		limit:   rate.Limit(float64(cfg.MaxAttempts) / cfg.Window.Seconds()),
		burst:   cfg.MaxAttempts,
		idle:    cfg.Window,
		now:     time.Now,
		buckets: map[string]*bucket{},
	}, nil
}

// Allow takes one token for key or returns authcore.ErrRateLimited.
func (l *Local) Allow(_ context.Context, key string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	if !b.lim.AllowN(now, 1) {
		return authcore.ErrRateLimited
	}
	return nil
}

// Reset refills key's bucket.
func (l *Local) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}

// sweep drops buckets idle for a full window; they have refilled by then.
func (l *Local) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.seen) >= l.idle {
			delete(l.buckets, k)
		}
	}
}
