package http

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiter keeps one token bucket per client address. A non-positive rate
// disables it.
type limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	perMinute int
	rate      rate.Limit
	burst     int
	maxIdle   time.Duration
	disabled  bool
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiter(perMinute, burst int) *limiter {
	if burst <= 0 {
		burst = perMinute
	}
	return &limiter{
		buckets:   make(map[string]*bucket),
		perMinute: perMinute,
		rate:      rate.Limit(float64(perMinute) / 60.0),
		burst:     burst,
		maxIdle:   30 * time.Minute,
		disabled:  perMinute <= 0,
	}
}

func (l *limiter) allow(key string) bool {
	if l.disabled {
		return true
	}

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	return b.lim.Allow()
}

// retryAfterSeconds is the time for one token to refill.
func (l *limiter) retryAfterSeconds() int {
	if l.perMinute <= 0 {
		return 60
	}
	return (60 + l.perMinute - 1) / l.perMinute
}

func (l *limiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.maxIdle {
			delete(l.buckets, k)
		}
	}
}

func (l *limiter) pruneLoop(ctx context.Context, every time.Duration) {
	if l.disabled {
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.prune(now)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
