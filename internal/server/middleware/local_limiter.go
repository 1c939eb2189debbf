package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/amby/internal/domain"
)

const localLimiterTTL = 10 * time.Minute

// LocalLimiter is an in-process domain.RateLimiter with one token bucket per
// key, used when Redis is not configured.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSwept time.Time
	now       func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an empty LocalLimiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Allow takes one token from key's bucket, which refills limit tokens per
// window.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.sweep(now)
	return b.lim.AllowN(now, 1), nil
}

// sweep forgets idle buckets at most once per TTL.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSwept) < localLimiterTTL {
		return
	}
	l.lastSwept = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > localLimiterTTL {
			delete(l.buckets, k)
		}
	}
}

var _ domain.RateLimiter = (*LocalLimiter)(nil)
